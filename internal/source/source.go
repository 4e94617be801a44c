// Package source provides the documents that get ingested: files in a
// directory, uploads, or anything else that can list and load by name.
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/markdown"
)

var ErrUnsupportedType = errors.New("unsupported document type")

// Document is a loaded source ready for the ingestion pipeline.
type Document struct {
	Name     string
	Text     string
	Source   string   // catalog source kind: upload, file, github, watch
	Headings []string // markdown header paths, empty for plain text
}

// Source lists and loads documents by name.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) (*Document, error)
}

// Supported reports whether name has an extension the pipeline can ingest.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

// FromBytes builds a Document from raw file content. Markdown is flattened
// so headings and lists survive as plain paragraphs.
func FromBytes(name, kind string, data []byte) (*Document, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return &Document{Name: name, Text: string(data), Source: kind}, nil
	case ".md", ".markdown":
		flat, err := markdown.NewFlattener().Flatten(data)
		if err != nil {
			return nil, fmt.Errorf("flatten %s: %w", name, err)
		}
		return &Document{Name: name, Text: flat.Text, Source: kind, Headings: flat.Headings}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, name)
	}
}
