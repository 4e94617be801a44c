package chunker

import (
	"regexp"
	"strings"
)

var (
	hyphenatedBreak = regexp.MustCompile(`(\w)-\s*\n\s*(\w)`)
	lowerUpper      = regexp.MustCompile(`([a-z])([A-Z])`)
	letterDigit     = regexp.MustCompile(`([A-Za-z])(\d)`)
	digitLetter     = regexp.MustCompile(`(\d)([A-Za-z])`)
	loneLowercaseL  = regexp.MustCompile(`(^|\s)l(\s|$)`)
)

// PreprocessOptions tunes Preprocess.
type PreprocessOptions struct {
	// RepairExtraction applies fixes for text pulled out of PDFs or OCR: spaces at
	// lower→Upper and letter↔digit boundaries, and a lone "l" read as "I".
	// It mangles identifiers and command flags, so it is off for plain text sources.
	RepairExtraction bool
}

// Preprocess repairs common extraction artifacts while keeping paragraph structure.
func Preprocess(text string, opts PreprocessOptions) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	if opts.RepairExtraction {
		text = lowerUpper.ReplaceAllString(text, "$1 $2")
		text = letterDigit.ReplaceAllString(text, "$1 $2")
		text = digitLetter.ReplaceAllString(text, "$1 $2")
		text = loneLowercaseL.ReplaceAllString(text, "${1}I${2}")
	}

	text = hyphenatedBreak.ReplaceAllString(text, "$1$2")
	text = horizontalRuns.ReplaceAllString(text, " ")
	text = excessNewlines.ReplaceAllString(text, paragraphSeparator)

	return strings.TrimSpace(text)
}
