// Package markdown turns markdown sources into plain paragraph text for the chunker.
package markdown

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Document is a markdown source flattened to paragraph text.
type Document struct {
	Text     string   // Blocks separated by blank lines, heading markers removed
	Headings []string // Header paths: "Installation > Prerequisites"
}

// Flattener parses markdown with goldmark and emits one paragraph per block.
type Flattener struct {
	parser   goldmark.Markdown
	maxDepth int
}

// NewFlattener creates a Flattener that records headings down to H3.
func NewFlattener() *Flattener {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Flattener{
		parser:   md,
		maxDepth: 3,
	}
}

// Flatten converts markdown into blank-line separated blocks. List markers are
// kept so list detection still works; fenced code keeps its content only.
func (f *Flattener) Flatten(source []byte) (*Document, error) {
	doc := f.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(f.maxDepth),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var headings []string
	collectHeadings(tree.Items, nil, &headings)

	var blocks []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if block := blockText(n, source); block != "" {
			blocks = append(blocks, block)
		}
	}

	return &Document{
		Text:     strings.Join(blocks, "\n\n"),
		Headings: headings,
	}, nil
}

// collectHeadings walks TOC items depth-first, recording each header path.
func collectHeadings(items toc.Items, ancestors []string, out *[]string) {
	for _, item := range items {
		current := append(append([]string(nil), ancestors...), string(item.Title))
		if len(item.Title) > 0 {
			*out = append(*out, formatHeaderPath(current))
		}
		if len(item.Items) > 0 {
			collectHeadings(item.Items, current, out)
		}
	}
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "Installation > Prerequisites"
func formatHeaderPath(path []string) string {
	var parts []string
	for _, segment := range path {
		if segment != "" {
			parts = append(parts, segment)
		}
	}
	return strings.Join(parts, " > ")
}

// blockText extracts the source text of one top-level block.
func blockText(n ast.Node, source []byte) string {
	if heading, ok := n.(*ast.Heading); ok {
		return strings.TrimSpace(segmentsText(heading.Lines(), source))
	}

	start, stop, ok := blockSpan(n)
	if !ok {
		return ""
	}
	start = lineStart(source, start)
	return strings.TrimSpace(string(source[start:stop]))
}

// blockSpan finds the byte range covered by the line segments of n and its block descendants.
func blockSpan(n ast.Node) (int, int, bool) {
	start, stop := -1, -1
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || node.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			if start == -1 || seg.Start < start {
				start = seg.Start
			}
			if seg.Stop > stop {
				stop = seg.Stop
			}
		}
		return ast.WalkContinue, nil
	})
	return start, stop, start >= 0 && stop > start
}

// lineStart moves pos back to the beginning of its line, picking up list markers.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

func segmentsText(lines *text.Segments, source []byte) string {
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return b.String()
}
