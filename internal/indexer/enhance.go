package indexer

import (
	"fmt"

	"github.com/mike-a-ellis/docqa/internal/chunker"
)

const (
	maxHeadingEntries    = 5
	maxDefinitionEntries = 10
)

// DocumentFilter is the header every entry of a document starts with. Used as
// a substring filter it matches that document only, not every name that
// happens to contain this one.
func DocumentFilter(name string) string {
	return "Document: " + name + "\n"
}

// EnhancedTexts builds the texts that get embedded and stored for a document:
// every chunk with its position, then the leading headings and definitions
// as standalone entries.
func EnhancedTexts(name string, chunks []chunker.Chunk, headings, definitions []string) []string {
	texts := make([]string, 0, len(chunks)+maxHeadingEntries+maxDefinitionEntries)
	header := DocumentFilter(name)

	for i, c := range chunks {
		texts = append(texts, fmt.Sprintf("%sChunk %d/%d\n\n%s", header, i+1, len(chunks), c.Text))
	}
	for _, h := range headings[:min(len(headings), maxHeadingEntries)] {
		texts = append(texts, header+"Heading: "+h)
	}
	for _, d := range definitions[:min(len(definitions), maxDefinitionEntries)] {
		texts = append(texts, header+"Definition: "+d)
	}
	return texts
}

// mergeHeadings puts markdown header paths ahead of detected heading lines,
// dropping duplicates.
func mergeHeadings(markdown, detected []string) []string {
	seen := make(map[string]struct{}, len(markdown)+len(detected))
	var out []string
	for _, list := range [][]string{markdown, detected} {
		for _, h := range list {
			if _, ok := seen[h]; ok || h == "" {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}
