package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/kv"
)

// fakeClock advances one minute per call.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func storeFactories() map[string]func(t *testing.T, clock *fakeClock) Store {
	return map[string]func(t *testing.T, clock *fakeClock) Store{
		"memory": func(t *testing.T, clock *fakeClock) Store {
			return NewMemoryStore(WithClock(clock.Now))
		},
		"badger": func(t *testing.T, clock *fakeClock) Store {
			backend, err := kv.Open("", true, nil)
			require.NoError(t, err)
			t.Cleanup(func() { backend.Close() })
			return NewBadgerStore(backend, WithClock(clock.Now))
		},
	}
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 9, 14, 4, 0, 0, time.UTC)}
}

func TestStore_Lifecycle(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, newClock())
			defer store.Close()

			s, err := store.Create(ctx, "linux.txt")
			require.NoError(t, err)
			assert.NotEmpty(t, s.ID)
			assert.Equal(t, "Chat Session 2024-03-09 14:05", s.Title)
			assert.Equal(t, "linux.txt", s.DocumentID)
			assert.Empty(t, s.Messages)

			updated, err := store.AppendMessage(ctx, s.ID, Message{Role: RoleUser, Content: "what is ls"})
			require.NoError(t, err)
			require.Len(t, updated.Messages, 1)
			assert.True(t, updated.UpdatedAt.After(s.CreatedAt))
			assert.False(t, updated.Messages[0].Timestamp.IsZero())

			_, err = store.AppendMessage(ctx, s.ID, Message{Role: RoleAssistant, Content: "ls lists files"})
			require.NoError(t, err)

			got, err := store.Get(ctx, s.ID)
			require.NoError(t, err)
			require.Len(t, got.Messages, 2)
			assert.Equal(t, "what is ls", got.Messages[0].Content)
			assert.Equal(t, RoleAssistant, got.Messages[1].Role)

			require.NoError(t, store.Delete(ctx, s.ID))
			_, err = store.Get(ctx, s.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.Delete(ctx, s.ID), ErrNotFound)
		})
	}
}

func TestStore_Errors(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, newClock())
			defer store.Close()

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.AppendMessage(ctx, "missing", Message{Role: RoleUser, Content: "x"})
			assert.ErrorIs(t, err, ErrNotFound)

			s, err := store.Create(ctx, "")
			require.NoError(t, err)
			_, err = store.AppendMessage(ctx, s.ID, Message{Role: "system", Content: "x"})
			assert.ErrorIs(t, err, ErrInvalidRole)
		})
	}
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, newClock())
			defer store.Close()

			empty, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty)

			first, err := store.Create(ctx, "")
			require.NoError(t, err)
			second, err := store.Create(ctx, "")
			require.NoError(t, err)
			third, err := store.Create(ctx, "")
			require.NoError(t, err)

			// Touch the oldest so it becomes the most recent.
			_, err = store.AppendMessage(ctx, first.ID, Message{Role: RoleUser, Content: "hi"})
			require.NoError(t, err)

			list, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, []string{first.ID, third.ID, second.ID},
				[]string{list[0].ID, list[1].ID, list[2].ID})
		})
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, newClock())
			defer store.Close()

			s, err := store.Create(ctx, "")
			require.NoError(t, err)
			got, err := store.AppendMessage(ctx, s.ID, Message{Role: RoleUser, Content: "original"})
			require.NoError(t, err)

			got.Messages[0].Content = "mutated"
			got.Title = "mutated"

			again, err := store.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, "original", again.Messages[0].Content)
			assert.NotEqual(t, "mutated", again.Title)
		})
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s, err := store.Create(ctx, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AppendMessage(ctx, s.ID, Message{Role: RoleUser, Content: "msg"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 50)
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())
	_, err := store.Create(context.Background(), "")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestBadgerStore_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := kv.Open(dir, false, nil)
	require.NoError(t, err)
	store := NewBadgerStore(backend)
	s, err := store.Create(ctx, "doc.md")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, s.ID, Message{Role: RoleUser, Content: "what is ls"})
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, backend.Close())

	backend, err = kv.Open(dir, false, nil)
	require.NoError(t, err)
	defer backend.Close()
	store = NewBadgerStore(backend)

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.Title, got.Title)
	assert.Equal(t, "doc.md", got.DocumentID)
	assert.True(t, got.CreatedAt.Equal(s.CreatedAt.Truncate(time.Microsecond)))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Equal(t, "what is ls", got.Messages[0].Content)
	assert.False(t, got.Messages[0].Timestamp.IsZero())
}
