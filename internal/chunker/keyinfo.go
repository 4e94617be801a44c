package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

// Tag marks structural content found in a chunk.
type Tag string

const (
	TagHeading    Tag = "heading"
	TagDefinition Tag = "definition"
	TagList       Tag = "list"
)

// MinListItems is how many list-like items make a chunk count as a list.
const MinListItems = 3

var (
	numberedHeading = regexp.MustCompile(`^\d+\.`)
	bulletOrNumber  = regexp.MustCompile(`^[•\-\*]\s+|^\d+\.\s+`)

	numberedItems = regexp.MustCompile(`(?m)^\d+[\.\)]\s+`)
	bulletItems   = regexp.MustCompile(`(?m)^[•\-\*]\s+`)
	codeSpans     = regexp.MustCompile("`[^`]+`")

	definitionMarkers = []string{"is defined as", "means", "refers to", "is the"}
)

// KeyInfo holds lines worth indexing on their own.
type KeyInfo struct {
	Headings        []string
	Definitions     []string
	ImportantPoints []string
}

// ExtractKeyInfo scans text line by line for headings, definitions and list points.
func ExtractKeyInfo(text string) KeyInfo {
	var info KeyInfo
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isHeadingLine(line) {
			info.Headings = append(info.Headings, line)
		}
		if isDefinitionLine(line) {
			info.Definitions = append(info.Definitions, line)
		}
		if bulletOrNumber.MatchString(line) {
			info.ImportantPoints = append(info.ImportantPoints, line)
		}
	}
	return info
}

// CountListItems counts numbered lines, bullet lines and inline code spans.
func CountListItems(text string) int {
	return len(numberedItems.FindAllStringIndex(text, -1)) +
		len(bulletItems.FindAllStringIndex(text, -1)) +
		len(codeSpans.FindAllStringIndex(text, -1))
}

// DetectTags reports which structural markers appear in text.
func DetectTags(text string) []Tag {
	var tags []Tag
	info := ExtractKeyInfo(text)
	if len(info.Headings) > 0 {
		tags = append(tags, TagHeading)
	}
	if len(info.Definitions) > 0 {
		tags = append(tags, TagDefinition)
	}
	if CountListItems(text) >= MinListItems {
		tags = append(tags, TagList)
	}
	return tags
}

func isHeadingLine(line string) bool {
	return (isUpper(line) && runeLen(line) > 3) || numberedHeading.MatchString(line)
}

func isDefinitionLine(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range definitionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// isUpper reports whether s has at least one cased letter and no lowercase ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}
