// Package catalog records which documents are indexed and the history of
// ingestion runs.
package catalog

//go:generate go run ../../cmd/musgen

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"
)

var ErrNotFound = errors.New("document not found")

// Document sources.
const (
	SourceUpload = "upload"
	SourceFile   = "file"
	SourceGitHub = "github"
	SourceWatch  = "watch"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DocumentRecord describes one ingested document.
type DocumentRecord struct {
	Name       string    `json:"name"`
	Source     string    `json:"source"`
	Size       int       `json:"size"`
	Chunks     int       `json:"chunks"`
	Summary    string    `json:"summary,omitempty"`
	KeyPoints  []string  `json:"key_points,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// TrainingRun is one ingestion attempt.
type TrainingRun struct {
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Documents []string      `json:"documents"`
	Error     string        `json:"error,omitempty"`
}

// Catalog stores document records and training runs.
type Catalog interface {
	PutDocument(ctx context.Context, doc DocumentRecord) error
	GetDocument(ctx context.Context, name string) (*DocumentRecord, error)
	// ListDocuments returns records sorted by name.
	ListDocuments(ctx context.Context) ([]DocumentRecord, error)
	DeleteDocument(ctx context.Context, name string) error
	RecordRun(ctx context.Context, run TrainingRun) error
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context) ([]TrainingRun, error)
	Close() error
}

func sortDocuments(docs []DocumentRecord) {
	slices.SortFunc(docs, func(a, b DocumentRecord) int {
		return cmp.Compare(a.Name, b.Name)
	})
}

func sortRuns(runs []TrainingRun) {
	slices.SortStableFunc(runs, func(a, b TrainingRun) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}
