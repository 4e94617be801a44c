package catalog

import (
	"context"
	"slices"
	"sync"
)

// MemoryCatalog keeps the catalog in process memory.
type MemoryCatalog struct {
	mu   sync.RWMutex
	docs map[string]DocumentRecord
	runs []TrainingRun
}

var _ Catalog = (*MemoryCatalog)(nil)

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{docs: make(map[string]DocumentRecord)}
}

func (m *MemoryCatalog) PutDocument(ctx context.Context, doc DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.KeyPoints = slices.Clone(doc.KeyPoints)
	m.docs[doc.Name] = doc
	return nil
}

func (m *MemoryCatalog) GetDocument(ctx context.Context, name string) (*DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[name]
	if !ok {
		return nil, ErrNotFound
	}
	doc.KeyPoints = slices.Clone(doc.KeyPoints)
	return &doc, nil
}

func (m *MemoryCatalog) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DocumentRecord, 0, len(m.docs))
	for _, doc := range m.docs {
		doc.KeyPoints = slices.Clone(doc.KeyPoints)
		out = append(out, doc)
	}
	sortDocuments(out)
	return out, nil
}

func (m *MemoryCatalog) DeleteDocument(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[name]; !ok {
		return ErrNotFound
	}
	delete(m.docs, name)
	return nil
}

func (m *MemoryCatalog) RecordRun(ctx context.Context, run TrainingRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.Documents = slices.Clone(run.Documents)
	m.runs = append(m.runs, run)
	return nil
}

func (m *MemoryCatalog) ListRuns(ctx context.Context) ([]TrainingRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TrainingRun, len(m.runs))
	for i, r := range m.runs {
		r.Documents = slices.Clone(r.Documents)
		out[i] = r
	}
	sortRuns(out)
	return out, nil
}

func (m *MemoryCatalog) Close() error {
	return nil
}
