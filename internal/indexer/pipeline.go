// Package indexer turns source documents into vector index entries and
// catalog records.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/mike-a-ellis/docqa/internal/catalog"
	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/llm"
	"github.com/mike-a-ellis/docqa/internal/source"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// DefaultEmbedBatch is how many texts one pool task embeds.
const DefaultEmbedBatch = 16

// Analyzer summarises a document. *llm.Client satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, req llm.AnalysisRequest) (*llm.DocumentAnalysis, error)
}

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	FailedDocs     []FailedDoc
	Duration       time.Duration
}

// FailedDoc represents a document that failed to index.
type FailedDoc struct {
	Name   string
	Reason string
}

// DocumentResult describes one ingested document.
type DocumentResult struct {
	Name     string
	Chunks   int // body chunks
	Entries  int // index entries, headings and definitions included
	Summary  string
	Duration time.Duration
}

// Pipeline orchestrates preprocessing, chunking, embedding and storage.
type Pipeline struct {
	chunker    *chunker.Chunker
	embedder   embedding.Embedder
	index      storage.VectorIndex
	catalog    catalog.Catalog
	analyzer   Analyzer
	pool       *ants.Pool
	embedBatch int
	repair     bool
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets how many embedding batches run concurrently.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithEmbedBatch sets how many texts go into one embedding request.
func WithEmbedBatch(n int) Option {
	return func(p *Pipeline) error {
		if n > 0 {
			p.embedBatch = n
		}
		return nil
	}
}

// WithAnalyzer enables per-document summaries.
func WithAnalyzer(a Analyzer) Option {
	return func(p *Pipeline) error {
		p.analyzer = a
		return nil
	}
}

// WithExtractionRepair turns on the preprocessing fixes meant for text
// extracted from PDFs or OCR.
func WithExtractionRepair(on bool) Option {
	return func(p *Pipeline) error {
		p.repair = on
		return nil
	}
}

// WithClock overrides the time source used for timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now != nil {
			p.now = now
		}
		return nil
	}
}

// WithLogger sets the logger; nil means slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline. Call Release when done.
func NewPipeline(ch *chunker.Chunker, embedder embedding.Embedder, index storage.VectorIndex, cat catalog.Catalog, opts ...Option) (*Pipeline, error) {
	switch {
	case ch == nil:
		return nil, fmt.Errorf("%w: chunker", ErrMissingComponent)
	case embedder == nil:
		return nil, fmt.Errorf("%w: embedder", ErrMissingComponent)
	case index == nil:
		return nil, fmt.Errorf("%w: index", ErrMissingComponent)
	case cat == nil:
		return nil, fmt.Errorf("%w: catalog", ErrMissingComponent)
	}

	p := &Pipeline{
		chunker:    ch,
		embedder:   embedder,
		index:      index,
		catalog:    cat,
		embedBatch: DefaultEmbedBatch,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	if p.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
		if err != nil {
			return nil, err
		}
		p.pool = pool
	}
	p.logger = p.logger.With("component", "indexer")
	return p, nil
}

// Release frees the worker pool. The pipeline must not be used afterwards.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Ingest indexes one document and records it as a training run.
func (p *Pipeline) Ingest(ctx context.Context, doc *source.Document) (*DocumentResult, error) {
	start := p.now()
	res, err := p.ingest(ctx, doc)
	p.recordRun(ctx, start, []string{doc.Name}, err)
	return res, err
}

// IngestAll indexes every document src lists. A document that fails is
// reported in the result and does not stop the others.
func (p *Pipeline) IngestAll(ctx context.Context, src source.Source) (*IndexResult, error) {
	start := p.now()
	result := &IndexResult{}

	names, err := src.List(ctx)
	if err != nil {
		p.recordRun(ctx, start, nil, err)
		return nil, fmt.Errorf("list documents: %w", err)
	}
	result.TotalDocs = len(names)
	p.logger.Info("Found documents", "count", len(names))

	var ingested []string
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			p.recordRun(ctx, start, ingested, err)
			return nil, err
		}
		doc, err := src.Load(ctx, name)
		if err == nil {
			var res *DocumentResult
			res, err = p.ingest(ctx, doc)
			if err == nil {
				result.SuccessfulDocs++
				result.TotalChunks += res.Chunks
				ingested = append(ingested, name)
				continue
			}
		}
		p.logger.Warn("Failed to process document", "name", name, "error", err)
		result.FailedDocs = append(result.FailedDocs, FailedDoc{Name: name, Reason: err.Error()})
	}

	result.Duration = p.now().Sub(start)
	var runErr error
	if result.SuccessfulDocs == 0 && len(result.FailedDocs) > 0 {
		runErr = fmt.Errorf("all %d documents failed", len(result.FailedDocs))
	}
	p.recordRun(ctx, start, ingested, runErr)

	p.logger.Info("Indexing complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, nil
}

// Remove deletes a document's entries from the index and its catalog record.
func (p *Pipeline) Remove(ctx context.Context, name string) (int, error) {
	removed, err := p.index.Delete(ctx, DocumentFilter(name))
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	err = p.catalog.DeleteDocument(ctx, name)
	if errors.Is(err, catalog.ErrNotFound) {
		if removed == 0 {
			return 0, fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
		}
		err = nil
	}
	if err != nil {
		return removed, fmt.Errorf("delete catalog record: %w", err)
	}
	p.logger.Info("Removed document", "name", name, "entries", removed)
	return removed, nil
}

func (p *Pipeline) ingest(ctx context.Context, doc *source.Document) (*DocumentResult, error) {
	start := p.now()
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.Name)
	}

	text := chunker.Preprocess(doc.Text, chunker.PreprocessOptions{RepairExtraction: p.repair})
	info := chunker.ExtractKeyInfo(text)
	headings := mergeHeadings(doc.Headings, info.Headings)

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.Name)
	}
	texts := EnhancedTexts(doc.Name, chunks, headings, info.Definitions)
	p.logger.Debug("Chunked document", "name", doc.Name, "chunks", len(chunks), "entries", len(texts))

	vectors, err := p.embedAll(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", doc.Name, err)
	}

	entries := make([]storage.Entry, len(texts))
	for i := range texts {
		entries[i] = storage.Entry{Vector: vectors[i], Text: texts[i]}
	}

	record := catalog.DocumentRecord{
		Name:   doc.Name,
		Source: doc.Source,
		Size:   len(doc.Text),
		Chunks: len(chunks),
	}
	if analysis := p.analyze(ctx, doc.Name, text); analysis != nil {
		record.Summary = analysis.Summary
		record.KeyPoints = analysis.KeyPoints
	}

	replaced, err := p.index.Replace(ctx, DocumentFilter(doc.Name), entries...)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", doc.Name, err)
	}

	// The index now holds the new entries; the catalog must follow even if
	// the caller has gone away.
	record.IngestedAt = p.now()
	if err := p.catalog.PutDocument(context.WithoutCancel(ctx), record); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", doc.Name, err)
	}

	p.logger.Info("Indexed document", "name", doc.Name, "chunks", len(chunks), "entries", len(entries), "replaced", replaced)
	return &DocumentResult{
		Name:     doc.Name,
		Chunks:   len(chunks),
		Entries:  len(entries),
		Summary:  record.Summary,
		Duration: p.now().Sub(start),
	}, nil
}

// analyze returns nil when no analyzer is set or the call fails.
func (p *Pipeline) analyze(ctx context.Context, name, text string) *llm.DocumentAnalysis {
	if p.analyzer == nil {
		return nil
	}
	analysis, err := p.analyzer.Analyze(ctx, llm.AnalysisRequest{DocumentName: name, Text: text})
	if err != nil {
		p.logger.Warn("Document analysis failed, using empty summary", "name", name, "error", err)
		return nil
	}
	return analysis
}

// embedAll embeds texts in batches on the worker pool. Order is preserved and
// the first failing batch cancels the rest.
func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(texts); start += p.embedBatch {
		end := min(start+p.embedBatch, len(texts))
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			out, err := p.embedder.EmbedBatch(ctx, texts[start:end])
			if err == nil && len(out) != end-start {
				err = fmt.Errorf("embedder returned %d vectors for %d texts", len(out), end-start)
			}
			if err != nil {
				fail(err)
				return
			}
			copy(vectors[start:end], out)
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding task: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (p *Pipeline) recordRun(ctx context.Context, start time.Time, docs []string, runErr error) {
	run := catalog.TrainingRun{
		ID:        uuid.NewString(),
		Status:    catalog.StatusCompleted,
		Timestamp: start,
		Duration:  p.now().Sub(start),
		Documents: docs,
	}
	if runErr != nil {
		run.Status = catalog.StatusFailed
		run.Error = runErr.Error()
	}
	if err := p.catalog.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		p.logger.Warn("Failed to record training run", "error", err)
	}
}
