// Package chunker splits document text into overlapping, paragraph-aligned chunks
// sized for embedding models and LLM context windows.
package chunker

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1200

	// DefaultOverlap is the maximum length of the sentence tail carried into the next chunk.
	DefaultOverlap = 200

	// oversizeFactor decides which paragraph-level chunks get re-split at sentence boundaries.
	oversizeFactor = 1.5

	paragraphSeparator = "\n\n"
)

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	horizontalRuns = regexp.MustCompile(`[ \t]+`)
)

// Chunk is one ordered segment of a document.
type Chunk struct {
	Index int    // Position in document (0, 1, 2...)
	Text  string // Full chunk text, overlap tail included
	// Overlap is the byte length of the prefix carried over from the previous
	// chunk, separator included. Zero when nothing was carried.
	Overlap int
	Tags    []Tag
}

// Body returns the chunk text without the carried overlap tail.
func (c Chunk) Body() string {
	return c.Text[c.Overlap:]
}

// Tail returns the overlap tail carried from the previous chunk, without its separator.
func (c Chunk) Tail() string {
	return strings.TrimSuffix(c.Text[:c.Overlap], paragraphSeparator)
}

// Chunker splits text at paragraph boundaries with a sentence-level overlap.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) error {
		if size <= 0 {
			return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
		}
		c.size = size
		return nil
	}
}

// WithOverlap sets the maximum overlap tail in characters. Zero disables overlap.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) error {
		if overlap < 0 {
			return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, overlap)
		}
		c.overlap = overlap
		return nil
	}
}

// New creates a Chunker. Defaults are DefaultChunkSize and DefaultOverlap.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.overlap >= c.size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d",
			ErrInvalidConfig, c.overlap, c.size)
	}
	return c, nil
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Normalize collapses runs of three or more newlines to a paragraph break and
// runs of spaces or tabs to a single space.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = excessNewlines.ReplaceAllString(text, paragraphSeparator)
	return horizontalRuns.ReplaceAllString(text, " ")
}

// Split chunks text. Empty input yields an empty slice.
func (c *Chunker) Split(text string) []Chunk {
	pieces := c.paragraphPass(Normalize(text))

	var chunks []Chunk
	for _, p := range pieces {
		if float64(runeLen(p.Text)) > oversizeFactor*float64(c.size) {
			chunks = append(chunks, c.sentencePass(p)...)
			continue
		}
		chunks = append(chunks, p)
	}

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Tags = DetectTags(chunks[i].Text)
	}
	return chunks
}

// paragraphPass greedily packs paragraphs, seeding each new chunk with the
// sentence tail of the previous one.
func (c *Chunker) paragraphPass(text string) []Chunk {
	var (
		out        []Chunk
		current    string
		curOverlap int
	)

	for _, paragraph := range strings.Split(text, paragraphSeparator) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if current != "" && runeLen(current)+runeLen(paragraph) > c.size {
			out = append(out, Chunk{Text: current, Overlap: curOverlap})

			if tail := c.overlapTail(current); tail != "" {
				current = tail + paragraphSeparator + paragraph
				curOverlap = len(tail) + len(paragraphSeparator)
			} else {
				current = paragraph
				curOverlap = 0
			}
			continue
		}

		if current != "" {
			current += paragraphSeparator + paragraph
		} else {
			current = paragraph
		}
	}

	if current != "" {
		out = append(out, Chunk{Text: current, Overlap: curOverlap})
	}
	return out
}

// overlapTail collects whole trailing sentences whose combined length stays within the overlap.
func (c *Chunker) overlapTail(text string) string {
	if c.overlap == 0 {
		return ""
	}

	sentences := splitSentences(text)
	tail := ""
	for i := len(sentences) - 1; i >= 0; i-- {
		candidate := sentences[i]
		if tail != "" {
			candidate += " " + tail
		}
		if runeLen(candidate) > c.overlap {
			break
		}
		tail = candidate
	}
	return tail
}

// sentencePass re-splits an oversized chunk at sentence boundaries. The carried
// tail stays on the first piece; no new overlap is introduced.
func (c *Chunker) sentencePass(p Chunk) []Chunk {
	limit := int(math.Floor(oversizeFactor * float64(c.size)))
	tail := p.Text[:p.Overlap]

	var (
		out        []Chunk
		current    string
		curOverlap int
		hasBody    bool
	)

	for _, unit := range c.sentenceUnits(p.Body()) {
		if !hasBody {
			if tail != "" && runeLen(tail)+runeLen(unit) <= limit {
				current = tail + unit
				curOverlap = len(tail)
			} else {
				current = unit
			}
			hasBody = true
			continue
		}

		if runeLen(current)+1+runeLen(unit) > c.size {
			out = append(out, Chunk{Text: current, Overlap: curOverlap})
			current = unit
			curOverlap = 0
			continue
		}
		current += " " + unit
	}

	if hasBody {
		out = append(out, Chunk{Text: current, Overlap: curOverlap})
	}
	return out
}

// sentenceUnits splits text into sentences, breaking any sentence longer than the
// chunk size at word boundaries, and any word longer than the chunk size by runes.
func (c *Chunker) sentenceUnits(text string) []string {
	var units []string
	for _, sentence := range splitSentences(text) {
		if runeLen(sentence) <= c.size {
			units = append(units, sentence)
			continue
		}

		current := ""
		for _, word := range strings.Fields(sentence) {
			for _, part := range splitRunes(word, c.size) {
				if current != "" && runeLen(current)+1+runeLen(part) > c.size {
					units = append(units, current)
					current = ""
				}
				if current == "" {
					current = part
				} else {
					current += " " + part
				}
			}
		}
		if current != "" {
			units = append(units, current)
		}
	}
	return units
}

// splitSentences splits after '.', '!' or '?' when followed by whitespace,
// dropping the whitespace run.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		if i+1 >= len(text) || !isSpace(text[i+1]) {
			continue
		}
		j := i + 1
		for j < len(text) && isSpace(text[j]) {
			j++
		}
		out = append(out, text[start:i+1])
		start = j
		i = j - 1
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func splitRunes(word string, size int) []string {
	if runeLen(word) <= size {
		return []string{word}
	}
	runes := []rune(word)
	var parts []string
	for len(runes) > size {
		parts = append(parts, string(runes[:size]))
		runes = runes[size:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
