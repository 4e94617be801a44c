package storage

import (
	"cmp"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
)

const (
	// IndexFileName holds the vector structure.
	IndexFileName = "index.gob"
	// DocsFileName holds the chunk texts in ordinal order.
	DocsFileName = "docs.gob"
)

// vectorFile is the on-disk vector structure, stored row-major.
type vectorFile struct {
	Dimension int
	Count     int
	Data      []float32
}

// fileState is one consistent read of both artifacts.
type fileState struct {
	dim     int
	vectors [][]float32
	texts   []string
}

// FileIndex persists the index as two gob files in a directory. Every
// operation re-reads both files and every mutation rewrites both, inside a
// mutex, so a single process never interleaves writes. Separate processes
// sharing a directory are not coordinated.
type FileIndex struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

var _ VectorIndex = (*FileIndex)(nil)

// FileOption configures a FileIndex.
type FileOption func(*FileIndex)

// WithLogger sets the logger used for corruption warnings.
func WithLogger(logger *slog.Logger) FileOption {
	return func(f *FileIndex) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFileIndex opens (creating if needed) an index directory.
func NewFileIndex(dir string, opts ...FileOption) (*FileIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	f := &FileIndex{dir: dir, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "file_index", "dir", dir)
	return f, nil
}

// Dir returns the index directory.
func (f *FileIndex) Dir() string {
	return f.dir
}

// Add validates every entry against the index dimension and appends them in
// one write.
func (f *FileIndex) Add(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.read()
	if !ok {
		st = &fileState{}
	}
	if err := st.append(entries); err != nil {
		return err
	}
	return f.write(st)
}

// Replace drops the entries matching docFilter and appends entries under a
// single lock and a single write.
func (f *FileIndex) Replace(ctx context.Context, docFilter string, entries ...Entry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.read()
	if !ok {
		st = &fileState{}
	}
	next, removed := st.without(docFilter)
	if err := next.append(entries); err != nil {
		return 0, err
	}
	if removed == 0 && len(entries) == 0 {
		return 0, nil
	}
	if err := f.write(next); err != nil {
		return 0, err
	}
	f.logger.Info("replaced entries", "filter", docFilter, "removed", removed, "added", len(entries), "total", len(next.texts))
	return removed, nil
}

// append validates entries and adds copies of them. The state is unchanged on error.
func (st *fileState) append(entries []Entry) error {
	dim := st.dim
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("%w: entry %d", ErrEmptyVector, i)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %d has %d dimensions, index has %d",
				ErrDimensionMismatch, i, len(e.Vector), dim)
		}
	}

	st.dim = dim
	for _, e := range entries {
		st.vectors = append(st.vectors, slices.Clone(e.Vector))
		st.texts = append(st.texts, e.Text)
	}
	return nil
}

// without returns a copy of the state minus the entries containing substr.
func (st *fileState) without(substr string) (*fileState, int) {
	out := &fileState{dim: st.dim}
	for i, text := range st.texts {
		if strings.Contains(text, substr) {
			continue
		}
		out.vectors = append(out.vectors, st.vectors[i])
		out.texts = append(out.texts, text)
	}
	return out, len(st.texts) - len(out.texts)
}

// Search ranks the entries matching docFilter by squared Euclidean distance.
func (f *FileIndex) Search(ctx context.Context, query []float32, k int, docFilter string) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	st, ok := f.read()
	f.mu.Unlock()

	if !ok || len(st.texts) == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if len(query) != st.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(query), st.dim)
	}

	type scored struct {
		ordinal  int
		distance float64
	}
	candidates := make([]scored, 0, len(st.texts))
	for i, text := range st.texts {
		if docFilter != "" && !strings.Contains(text, docFilter) {
			continue
		}
		candidates = append(candidates, scored{ordinal: i, distance: squaredL2(query, st.vectors[i])})
	}

	slices.SortFunc(candidates, func(a, b scored) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ordinal, b.ordinal)
	})

	hits := make([]Hit, 0, min(k, len(candidates)))
	for _, c := range candidates[:min(k, len(candidates))] {
		hits = append(hits, Hit{
			ID:       strconv.Itoa(c.ordinal),
			Text:     st.texts[c.ordinal],
			Distance: c.distance,
		})
	}
	return hits, nil
}

// Delete removes every entry whose text contains docName.
func (f *FileIndex) Delete(ctx context.Context, docName string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.read()
	if !ok {
		return 0, nil
	}

	survivors, removed := st.without(docName)
	if removed == 0 {
		return 0, nil
	}
	if err := f.write(survivors); err != nil {
		return 0, err
	}
	f.logger.Info("deleted entries", "document", docName, "removed", removed, "remaining", len(survivors.texts))
	return removed, nil
}

// Load returns the entries matching docFilter with their full-index ordinals.
func (f *FileIndex) Load(ctx context.Context, docFilter string) (Lookup, error) {
	if err := ctx.Err(); err != nil {
		return Absent(), err
	}

	f.mu.Lock()
	st, ok := f.read()
	f.mu.Unlock()

	if !ok {
		return Absent(), nil
	}

	snap := &Snapshot{Dimension: st.dim}
	for i, text := range st.texts {
		if docFilter != "" && !strings.Contains(text, docFilter) {
			continue
		}
		snap.Vectors = append(snap.Vectors, st.vectors[i])
		snap.Texts = append(snap.Texts, text)
		snap.Ordinals = append(snap.Ordinals, i)
	}
	return Present(snap), nil
}

// Stats reports the entry count and dimension.
func (f *FileIndex) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	f.mu.Lock()
	st, ok := f.read()
	f.mu.Unlock()

	stats := Stats{Backend: "file"}
	if ok {
		stats.Entries = len(st.texts)
		stats.Dimension = st.dim
	}
	return stats, nil
}

// Health checks that the index directory is still accessible.
func (f *FileIndex) Health(ctx context.Context) error {
	info, err := os.Stat(f.dir)
	if err != nil {
		return fmt.Errorf("index directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("index path %s is not a directory", f.dir)
	}
	return nil
}

// Close is a no-op; the files are closed after every operation.
func (f *FileIndex) Close() error {
	return nil
}

// read loads both artifacts. It reports false when no index exists or when
// the files are unreadable or inconsistent; the latter is logged.
func (f *FileIndex) read() (*fileState, bool) {
	indexPath := filepath.Join(f.dir, IndexFileName)
	docsPath := filepath.Join(f.dir, DocsFileName)

	_, indexErr := os.Stat(indexPath)
	_, docsErr := os.Stat(docsPath)
	if errors.Is(indexErr, fs.ErrNotExist) && errors.Is(docsErr, fs.ErrNotExist) {
		return nil, false
	}

	var vf vectorFile
	if err := decodeFile(indexPath, &vf); err != nil {
		f.logger.Warn("index unreadable, treating as absent", "file", IndexFileName, "error", err)
		return nil, false
	}
	var texts []string
	if err := decodeFile(docsPath, &texts); err != nil {
		f.logger.Warn("index unreadable, treating as absent", "file", DocsFileName, "error", err)
		return nil, false
	}

	if vf.Count != len(texts) || vf.Count*vf.Dimension != len(vf.Data) || vf.Dimension < 0 {
		f.logger.Warn("index corrupt, treating as absent",
			"vectors", vf.Count, "texts", len(texts), "dimension", vf.Dimension, "data", len(vf.Data))
		return nil, false
	}

	st := &fileState{dim: vf.Dimension, texts: texts, vectors: make([][]float32, vf.Count)}
	for i := range st.vectors {
		st.vectors[i] = vf.Data[i*vf.Dimension : (i+1)*vf.Dimension]
	}
	return st, true
}

// write persists both artifacts, each through a temp file and rename.
func (f *FileIndex) write(st *fileState) error {
	vf := vectorFile{
		Dimension: st.dim,
		Count:     len(st.vectors),
		Data:      make([]float32, 0, len(st.vectors)*st.dim),
	}
	for _, v := range st.vectors {
		vf.Data = append(vf.Data, v...)
	}
	texts := st.texts
	if texts == nil {
		texts = []string{}
	}

	if err := encodeFile(filepath.Join(f.dir, IndexFileName), vf); err != nil {
		return fmt.Errorf("write %s: %w", IndexFileName, err)
	}
	if err := encodeFile(filepath.Join(f.dir, DocsFileName), texts); err != nil {
		return fmt.Errorf("write %s: %w", DocsFileName, err)
	}
	return nil
}

func decodeFile(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewDecoder(file).Decode(v)
}

func encodeFile(path string, v any) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(file).Encode(v); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}

	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
