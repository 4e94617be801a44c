package storage

import "context"

// Entry pairs an embedding with the chunk text it was computed from.
type Entry struct {
	Vector []float32
	Text   string
}

// Hit is one nearest-neighbour result.
type Hit struct {
	ID       string  // Ordinal for the file backend, point UUID for Qdrant
	Text     string  // Chunk text as stored
	Distance float64 // Squared Euclidean distance to the query
}

// Snapshot is the persisted index content. Vectors[i], Texts[i] and
// Ordinals[i] always describe the same entry.
type Snapshot struct {
	Dimension int
	Vectors   [][]float32
	Texts     []string
	Ordinals  []int
}

// Len returns the number of entries in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Texts)
}

// Lookup distinguishes "no index has been written yet" from an index that
// exists, possibly with zero entries.
type Lookup struct {
	snapshot *Snapshot
}

// Absent is the Lookup returned before the first write.
func Absent() Lookup {
	return Lookup{}
}

// Present wraps a loaded snapshot.
func Present(s *Snapshot) Lookup {
	return Lookup{snapshot: s}
}

// Get returns the snapshot and true when the index exists.
func (l Lookup) Get() (*Snapshot, bool) {
	return l.snapshot, l.snapshot != nil
}

// IsAbsent reports whether no index exists yet.
func (l Lookup) IsAbsent() bool {
	return l.snapshot == nil
}

// Stats summarises an index for status reporting.
type Stats struct {
	Backend   string
	Entries   int
	Dimension int
}

// VectorIndex is a durable, filterable nearest-neighbour store of chunk embeddings.
//
// A docFilter restricts operations to entries whose text contains the filter
// as a substring; enhanced chunk texts carry "Document: {name}" headers, so a
// document name selects that document's entries.
type VectorIndex interface {
	// Add appends entries in one persisted write. The first write fixes the
	// index dimension; later entries of another size fail with ErrDimensionMismatch
	// and leave the index untouched.
	Add(ctx context.Context, entries ...Entry) error
	// Search returns up to k entries nearest to query, ascending by distance.
	// An absent or empty index yields no hits and no error.
	Search(ctx context.Context, query []float32, k int, docFilter string) ([]Hit, error)
	// Delete removes all entries whose text contains docName and returns how many were removed.
	Delete(ctx context.Context, docName string) (int, error)
	// Replace swaps every entry matching docFilter for entries and returns how
	// many were removed. When it fails, the previous entries are still in place.
	Replace(ctx context.Context, docFilter string, entries ...Entry) (int, error)
	// Load returns the persisted content, or Absent before the first write.
	Load(ctx context.Context, docFilter string) (Lookup, error)
	Stats(ctx context.Context) (Stats, error)
	Health(ctx context.Context) error
	Close() error
}
