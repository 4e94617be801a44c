package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeyInfo(t *testing.T) {
	text := `INTRODUCTION
1. Getting started
A process refers to a running program.
Plain sentence without markers.
- first point
* second point
2. Next steps`

	info := ExtractKeyInfo(text)

	assert.Equal(t, []string{"INTRODUCTION", "1. Getting started", "2. Next steps"}, info.Headings)
	assert.Equal(t, []string{"A process refers to a running program."}, info.Definitions)
	assert.Equal(t, []string{"1. Getting started", "- first point", "* second point", "2. Next steps"}, info.ImportantPoints)
}

func TestIsUpper(t *testing.T) {
	assert.True(t, isUpper("API REFERENCE 2"))
	assert.False(t, isUpper("Api Reference"))
	assert.False(t, isUpper("1234"))
}

func TestCountListItems(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"numbered", "1. one\n2) two\n3. three", 3},
		{"bullets", "• a\n- b\n* c", 3},
		{"code spans", "use `ls`, `cd` and `pwd`", 3},
		{"plain", "no list here", 0},
		{"inline numbers ignored", "version 1. is not a list item at line start? 2. neither", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountListItems(tt.text))
		})
	}
}

func TestPreprocess(t *testing.T) {
	t.Run("plain text", func(t *testing.T) {
		got := Preprocess("  The com-\n  mand   runs\tfast.\n\n\n\nNext  paragraph with ls -l  ", PreprocessOptions{})
		assert.Equal(t, "The command runs fast.\n\nNext paragraph with ls -l", got)
	})

	t.Run("repair extraction", func(t *testing.T) {
		got := Preprocess("runningOn linux2024 and 3files l think", PreprocessOptions{RepairExtraction: true})
		assert.Equal(t, "running On linux 2024 and 3 files I think", got)
	})
}
