package storage

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// DefaultCollection is the Qdrant collection used when none is configured.
const DefaultCollection = "docqa_chunks"

const scrollPageSize = uint32(256)

// QdrantIndex stores entries as points in a single Qdrant collection using
// Euclidean distance. The collection is created on the first Add with the
// dimension of the incoming vectors.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger

	mu  sync.Mutex
	dim int
}

var _ VectorIndex = (*QdrantIndex)(nil)

// QdrantOption configures a QdrantIndex.
type QdrantOption func(*QdrantIndex)

// WithCollection overrides the collection name.
func WithCollection(name string) QdrantOption {
	return func(q *QdrantIndex) {
		if name != "" {
			q.collection = name
		}
	}
}

// WithQdrantLogger sets the logger.
func WithQdrantLogger(logger *slog.Logger) QdrantOption {
	return func(q *QdrantIndex) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewQdrantIndex creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantIndex(ctx context.Context, host string, port int, opts ...QdrantOption) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	q := &QdrantIndex{
		client:     client,
		collection: DefaultCollection,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("component", "qdrant_index", "collection", q.collection)

	if err := q.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return q, nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// healthCheckWithRetry performs health check with exponential backoff.
func (q *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return q.Health(ctx)
	}, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (q *QdrantIndex) Health(ctx context.Context) error {
	result, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Close closes the Qdrant client connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// dimension returns the collection's vector size, or 0 when it does not exist yet.
func (q *QdrantIndex) dimension(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dim > 0 {
		return q.dim, nil
	}

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return 0, nil
	}

	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection: %w", err)
	}
	q.dim = int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	return q.dim, nil
}

// ensureCollection creates the collection with the given dimension if missing.
func (q *QdrantIndex) ensureCollection(ctx context.Context, dim int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dim > 0 {
		return nil
	}

	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	q.dim = dim
	q.logger.Info("created collection", "dimension", dim)
	return nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (q *QdrantIndex) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(newBackoff(), ctx))
}

// Add upserts entries in batches of 100. Each point records its insertion
// sequence so Load can return entries in write order.
func (q *QdrantIndex) Add(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := q.prepare(ctx, entries); err != nil {
		return err
	}
	_, err := q.upsertEntries(ctx, entries)
	return err
}

// Replace upserts the new entries before deleting the points that matched
// docFilter, so a failed upsert leaves the previous entries searchable.
// Points from a partially failed upsert are removed again.
func (q *QdrantIndex) Replace(ctx context.Context, docFilter string, entries ...Entry) (int, error) {
	if len(entries) == 0 {
		return q.Delete(ctx, docFilter)
	}
	if err := q.prepare(ctx, entries); err != nil {
		return 0, err
	}

	old, err := q.matchingIDs(ctx, docFilter)
	if err != nil {
		return 0, err
	}
	written, err := q.upsertEntries(ctx, entries)
	if err != nil {
		if len(written) > 0 {
			if cerr := q.deleteIDs(context.WithoutCancel(ctx), written); cerr != nil {
				q.logger.Warn("failed to remove partial upsert", "points", len(written), "error", cerr)
			}
		}
		return 0, err
	}
	if len(old) == 0 {
		return 0, nil
	}

	// The new points are committed; finish the swap even if the caller has gone.
	if err := q.deleteIDs(context.WithoutCancel(ctx), old); err != nil {
		return 0, fmt.Errorf("remove replaced entries: %w", err)
	}
	q.logger.Info("replaced entries", "filter", docFilter, "removed", len(old), "added", len(entries))
	return len(old), nil
}

// prepare checks entry dimensions and creates the collection on first use.
func (q *QdrantIndex) prepare(ctx context.Context, entries []Entry) error {
	dim, err := q.dimension(ctx)
	if err != nil {
		return err
	}
	want := dim
	if want == 0 {
		want = len(entries[0].Vector)
	}
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("%w: entry %d", ErrEmptyVector, i)
		}
		if len(e.Vector) != want {
			return fmt.Errorf("%w: entry %d has %d dimensions, index has %d",
				ErrDimensionMismatch, i, len(e.Vector), want)
		}
	}
	if dim == 0 {
		return q.ensureCollection(ctx, want)
	}
	return nil
}

// upsertEntries writes entries in batches and returns the IDs of the batches
// that were committed, also when a later batch fails.
func (q *QdrantIndex) upsertEntries(ctx context.Context, entries []Entry) ([]*qdrant.PointId, error) {
	base := time.Now().UnixNano()
	batchSize := 100
	written := make([]*qdrant.PointId, 0, len(entries))
	for i := 0; i < len(entries); i += batchSize {
		end := min(i+batchSize, len(entries))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for j, e := range entries[i:end] {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(uuid.New().String()),
				Vectors: qdrant.NewVectors(e.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"content": e.Text,
					"seq":     base + int64(i+j),
				}),
			})
		}

		if err := q.upsertWithRetry(ctx, points); err != nil {
			return written, fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
		for _, p := range points {
			written = append(written, p.GetId())
		}
	}
	return written, nil
}

// Search queries the collection. Qdrant reports Euclidean distance as the
// score; it is squared here to match the file backend.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int, docFilter string) ([]Hit, error) {
	dim, err := q.dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(query), dim)
	}

	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if docFilter != "" {
		ids, err := q.matchingIDs(ctx, docFilter)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []Hit{}, nil
		}
		req.Filter = &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewHasID(ids...)}}
	}

	results, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		d := float64(r.GetScore())
		hits = append(hits, Hit{
			ID:       r.GetId().GetUuid(),
			Text:     r.GetPayload()["content"].GetStringValue(),
			Distance: d * d,
		})
	}
	return hits, nil
}

// Delete removes every point whose content contains docName.
func (q *QdrantIndex) Delete(ctx context.Context, docName string) (int, error) {
	dim, err := q.dimension(ctx)
	if err != nil || dim == 0 {
		return 0, err
	}

	ids, err := q.matchingIDs(ctx, docName)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := q.deleteIDs(ctx, ids); err != nil {
		return 0, err
	}
	q.logger.Info("deleted entries", "document", docName, "removed", len(ids))
	return len(ids), nil
}

func (q *QdrantIndex) deleteIDs(ctx context.Context, ids []*qdrant.PointId) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorIDs(ids),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

// Load scrolls the whole collection and returns it in insertion order.
// Ordinals are positions in the whole collection, before docFilter applies.
func (q *QdrantIndex) Load(ctx context.Context, docFilter string) (Lookup, error) {
	dim, err := q.dimension(ctx)
	if err != nil {
		return Absent(), err
	}
	if dim == 0 {
		return Absent(), nil
	}

	var rows []seqRow
	err = q.scroll(ctx, true, func(p *qdrant.RetrievedPoint) {
		rows = append(rows, seqRow{
			seq:    p.GetPayload()["seq"].GetIntegerValue(),
			text:   p.GetPayload()["content"].GetStringValue(),
			vector: denseVector(p.GetVectors().GetVector()),
		})
	})
	if err != nil {
		return Absent(), err
	}
	return Present(orderedSnapshot(dim, rows, docFilter)), nil
}

// seqRow is one scrolled point.
type seqRow struct {
	seq    int64
	text   string
	vector []float32
}

// orderedSnapshot sorts rows into insertion order, numbers them, then keeps
// those containing docFilter.
func orderedSnapshot(dim int, rows []seqRow, docFilter string) *Snapshot {
	slices.SortStableFunc(rows, func(a, b seqRow) int { return cmp.Compare(a.seq, b.seq) })

	snap := &Snapshot{Dimension: dim}
	for i, r := range rows {
		if docFilter != "" && !strings.Contains(r.text, docFilter) {
			continue
		}
		snap.Vectors = append(snap.Vectors, r.vector)
		snap.Texts = append(snap.Texts, r.text)
		snap.Ordinals = append(snap.Ordinals, i)
	}
	return snap
}

// Stats returns the point count and dimension.
func (q *QdrantIndex) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: "qdrant"}
	dim, err := q.dimension(ctx)
	if err != nil || dim == 0 {
		return stats, err
	}

	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return stats, fmt.Errorf("failed to count points: %w", err)
	}
	stats.Entries = int(count)
	stats.Dimension = dim
	return stats, nil
}

// matchingIDs returns the IDs of points whose content contains substr.
// Qdrant has no substring match without a full-text index, so the check runs client-side.
func (q *QdrantIndex) matchingIDs(ctx context.Context, substr string) ([]*qdrant.PointId, error) {
	var ids []*qdrant.PointId
	err := q.scroll(ctx, false, func(p *qdrant.RetrievedPoint) {
		if strings.Contains(p.GetPayload()["content"].GetStringValue(), substr) {
			ids = append(ids, p.GetId())
		}
	})
	return ids, err
}

func (q *QdrantIndex) scroll(ctx context.Context, withVectors bool, visit func(*qdrant.RetrievedPoint)) error {
	var offset *qdrant.PointId
	for {
		points, next, err := q.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Limit:          qdrant.PtrOf(scrollPageSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(withVectors),
		})
		if err != nil {
			return fmt.Errorf("failed to scroll points: %w", err)
		}
		for _, p := range points {
			visit(p)
		}
		if next == nil || len(points) == 0 {
			return nil
		}
		offset = next
	}
}

func denseVector(v *qdrant.VectorOutput) []float32 {
	if dense := v.GetDense(); dense != nil {
		return dense.GetData()
	}
	return v.GetData()
}
