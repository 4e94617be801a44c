package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/mike-a-ellis/docqa/internal/kv"
)

const (
	docPrefix = "doc:"
	runPrefix = "run:"
)

// BadgerCatalog stores mus-encoded records in a shared kv backend.
// Runs are keyed by timestamp so a prefix scan returns them oldest first.
type BadgerCatalog struct {
	backend *kv.Backend
}

var _ Catalog = (*BadgerCatalog)(nil)

// NewBadgerCatalog creates a catalog on backend. Close does not close the backend.
func NewBadgerCatalog(backend *kv.Backend) *BadgerCatalog {
	return &BadgerCatalog{backend: backend}
}

func runKey(run TrainingRun) string {
	return fmt.Sprintf("%s%020d:%s", runPrefix, run.Timestamp.UnixNano(), run.ID)
}

func (b *BadgerCatalog) PutDocument(ctx context.Context, doc DocumentRecord) error {
	return b.backend.Update(func(txn *badger.Txn) error {
		return kv.Put[DocumentRecord](txn, docPrefix+doc.Name, DocumentRecordMUS, doc)
	})
}

func (b *BadgerCatalog) GetDocument(ctx context.Context, name string) (*DocumentRecord, error) {
	var doc DocumentRecord
	err := b.backend.View(func(txn *badger.Txn) error {
		var err error
		doc, err = kv.Get[DocumentRecord](txn, docPrefix+name, DocumentRecordMUS)
		return err
	})
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (b *BadgerCatalog) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	out := []DocumentRecord{}
	err := b.backend.View(func(txn *badger.Txn) error {
		return kv.Scan[DocumentRecord](txn, docPrefix, DocumentRecordMUS, func(_ string, doc DocumentRecord) error {
			out = append(out, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortDocuments(out)
	return out, nil
}

func (b *BadgerCatalog) DeleteDocument(ctx context.Context, name string) error {
	exists, err := b.backend.Exists(docPrefix + name)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return b.backend.Delete(docPrefix + name)
}

func (b *BadgerCatalog) RecordRun(ctx context.Context, run TrainingRun) error {
	return b.backend.Update(func(txn *badger.Txn) error {
		return kv.Put[TrainingRun](txn, runKey(run), TrainingRunMUS, run)
	})
}

func (b *BadgerCatalog) ListRuns(ctx context.Context) ([]TrainingRun, error) {
	out := []TrainingRun{}
	err := b.backend.View(func(txn *badger.Txn) error {
		return kv.Scan[TrainingRun](txn, runPrefix, TrainingRunMUS, func(_ string, run TrainingRun) error {
			out = append(out, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRuns(out)
	return out, nil
}

func (b *BadgerCatalog) Close() error {
	return nil
}
