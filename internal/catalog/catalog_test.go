package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/kv"
)

func catalogs(t *testing.T) map[string]Catalog {
	backend, err := kv.Open("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	return map[string]Catalog{
		"memory": NewMemoryCatalog(),
		"badger": NewBadgerCatalog(backend),
	}
}

func TestCatalog_Documents(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

			require.NoError(t, c.PutDocument(ctx, DocumentRecord{Name: "b.md", Source: SourceGitHub, Chunks: 4, IngestedAt: now}))
			require.NoError(t, c.PutDocument(ctx, DocumentRecord{
				Name: "a.txt", Source: SourceUpload, Size: 120, Chunks: 2,
				Summary: "About a.", KeyPoints: []string{"one"}, IngestedAt: now,
			}))

			doc, err := c.GetDocument(ctx, "a.txt")
			require.NoError(t, err)
			assert.Equal(t, "About a.", doc.Summary)
			assert.Equal(t, []string{"one"}, doc.KeyPoints)
			assert.True(t, doc.IngestedAt.Equal(now))

			docs, err := c.ListDocuments(ctx)
			require.NoError(t, err)
			require.Len(t, docs, 2)
			assert.Equal(t, "a.txt", docs[0].Name)
			assert.Equal(t, "b.md", docs[1].Name)

			// Re-ingesting replaces the record.
			require.NoError(t, c.PutDocument(ctx, DocumentRecord{Name: "b.md", Chunks: 9}))
			doc, err = c.GetDocument(ctx, "b.md")
			require.NoError(t, err)
			assert.Equal(t, 9, doc.Chunks)

			require.NoError(t, c.DeleteDocument(ctx, "a.txt"))
			_, err = c.GetDocument(ctx, "a.txt")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, c.DeleteDocument(ctx, "a.txt"), ErrNotFound)
		})
	}
}

func TestCatalog_Runs(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

			runs, err := c.ListRuns(ctx)
			require.NoError(t, err)
			assert.Empty(t, runs)

			require.NoError(t, c.RecordRun(ctx, TrainingRun{ID: "r1", Status: StatusCompleted, Timestamp: base, Documents: []string{"a.txt"}}))
			require.NoError(t, c.RecordRun(ctx, TrainingRun{ID: "r3", Status: StatusFailed, Timestamp: base.Add(2 * time.Hour), Error: "boom"}))
			require.NoError(t, c.RecordRun(ctx, TrainingRun{ID: "r2", Status: StatusCompleted, Timestamp: base.Add(time.Hour), Duration: 3 * time.Second}))

			runs, err = c.ListRuns(ctx)
			require.NoError(t, err)
			require.Len(t, runs, 3)
			assert.Equal(t, []string{"r3", "r2", "r1"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
			assert.Equal(t, "boom", runs[0].Error)
			assert.Equal(t, 3*time.Second, runs[1].Duration)
			assert.Equal(t, []string{"a.txt"}, runs[2].Documents)
		})
	}
}

func TestBadgerCatalog_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ingested := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)

	backend, err := kv.Open(dir, false, nil)
	require.NoError(t, err)
	c := NewBadgerCatalog(backend)
	doc := DocumentRecord{
		Name: "guide.md", Source: SourceWatch, Size: 4096, Chunks: 7,
		Summary: "How to install.", KeyPoints: []string{"download", "run setup"}, IngestedAt: ingested,
	}
	run := TrainingRun{
		ID: "r1", Status: StatusFailed, Timestamp: ingested, Duration: 1500 * time.Millisecond,
		Documents: []string{"guide.md", "notes.txt"}, Error: "embed notes.txt: provider error",
	}
	require.NoError(t, c.PutDocument(ctx, doc))
	require.NoError(t, c.RecordRun(ctx, run))
	require.NoError(t, backend.Close())

	backend, err = kv.Open(dir, false, nil)
	require.NoError(t, err)
	defer backend.Close()
	c = NewBadgerCatalog(backend)

	got, err := c.GetDocument(ctx, "guide.md")
	require.NoError(t, err)
	assert.Equal(t, doc.Name, got.Name)
	assert.Equal(t, doc.Source, got.Source)
	assert.Equal(t, doc.Size, got.Size)
	assert.Equal(t, doc.Chunks, got.Chunks)
	assert.Equal(t, doc.Summary, got.Summary)
	assert.Equal(t, doc.KeyPoints, got.KeyPoints)
	// Timestamps are kept to the microsecond.
	assert.True(t, got.IngestedAt.Equal(ingested.Truncate(time.Microsecond)))

	runs, err := c.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, run.Status, runs[0].Status)
	assert.Equal(t, run.Duration, runs[0].Duration)
	assert.Equal(t, run.Documents, runs[0].Documents)
	assert.Equal(t, run.Error, runs[0].Error)
	assert.True(t, runs[0].Timestamp.Equal(ingested.Truncate(time.Microsecond)))
}
