package retrieval

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/chunker"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

var stopWords = toSet(
	"what", "how", "when", "where", "why", "who", "which", "is", "are",
	"was", "were", "be", "been", "being", "have", "has", "had", "do",
	"does", "did", "will", "would", "could", "should", "may", "might",
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
	"of", "with", "by", "about", "can", "tell", "me", "please", "explain",
)

// importantTerms are always kept as keywords, even when short or common.
var importantTerms = toSet(
	"linux", "command", "commands", "terminal", "shell", "bash", "system",
	"file", "directory", "process", "user", "permission", "network",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Keywords extracts the meaningful lowercase words of a query, in order.
func Keywords(query string) []string {
	var keywords []string
	for _, word := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		if _, ok := importantTerms[word]; ok {
			keywords = append(keywords, word)
			continue
		}
		if _, ok := stopWords[word]; !ok && len([]rune(word)) > 2 {
			keywords = append(keywords, word)
		}
	}
	return keywords
}

// KeywordOverlap scores text against keywords as
// (exact + 0.5*partial) / len(keywords). A keyword counts as partial when it
// is a substring of some word in the text or the other way round, which
// includes exact matches.
func KeywordOverlap(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	words := toSet(wordPattern.FindAllString(strings.ToLower(text), -1)...)

	var exact, partial float64
	for _, kw := range keywords {
		if _, ok := words[kw]; ok {
			exact++
		}
		for w := range words {
			if strings.Contains(w, kw) || strings.Contains(kw, w) {
				partial += 0.5
				break
			}
		}
	}
	return (exact + partial) / float64(len(keywords))
}

// Assemble reorders the selected sections by lexical relevance and formats
// them under numbered section headers.
func (r *Ranker) Assemble(query string, selected []Section) *Context {
	comprehensive := IsComprehensive(query)
	keywords := Keywords(query)

	sections := make([]Section, len(selected))
	for i, s := range selected {
		s.Lexical = KeywordOverlap(s.Text, keywords)
		if comprehensive && chunker.CountListItems(s.Text) >= r.cfg.ListItemMin {
			s.Lexical += r.cfg.ListBoost
		}
		sections[i] = s
	}
	slices.SortStableFunc(sections, func(a, b Section) int {
		return cmp.Compare(b.Lexical, a.Lexical)
	})

	blocks := make([]string, len(sections))
	for i, s := range sections {
		blocks[i] = fmt.Sprintf("=== DOCUMENT SECTION %d ===\n%s", i+1, s.Text)
	}

	return &Context{
		Query:    query,
		Sections: sections,
		Text:     strings.Join(blocks, "\n\n"),
	}
}
