package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/kvstore"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
)

func newGuard() *Guard {
	return New(kvstore.NewMemory())
}

func TestCreateAndGet(t *testing.T) {
	g := newGuard()
	ctx := context.Background()

	n, err := g.Create(ctx, "shopping", "milk", []string{"home"})
	require.NoError(t, err)
	require.NotEmpty(t, n.ID)
	require.Equal(t, int64(1), n.Version)
	require.False(t, n.CreatedAt.IsZero())
	require.Equal(t, n.CreatedAt, n.UpdatedAt)

	got, err := g.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, n, got)

	_, err = g.Get(ctx, "nope")
	require.ErrorIs(t, err, note.ErrNotFound)
}

func TestConditionalUpdateIncrementsByOne(t *testing.T) {
	g := newGuard()
	ctx := context.Background()

	n, err := g.Create(ctx, "a", "", nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		n, err = g.ConditionalUpdate(ctx, n.ID, n.Version, func(cur *note.Note) error {
			cur.Content = "rev"
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, int64(2+i), n.Version)
	}
}

func TestConditionalUpdateStaleVersion(t *testing.T) {
	g := newGuard()
	ctx := context.Background()

	n, err := g.Create(ctx, "a", "", nil)
	require.NoError(t, err)

	_, err = g.ConditionalUpdate(ctx, n.ID, n.Version, func(cur *note.Note) error {
		cur.Content = "first"
		return nil
	})
	require.NoError(t, err)

	// second writer still holds version 1
	_, err = g.ConditionalUpdate(ctx, n.ID, n.Version, func(cur *note.Note) error {
		cur.Content = "second"
		return nil
	})
	require.True(t, note.IsConflict(err))
	var ce *note.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, int64(2), ce.ServerVersion)

	// the losing write left no trace
	got, err := g.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, "first", got.Content)
	require.Equal(t, int64(2), got.Version)
}

func TestConcurrentStaleWritersExactlyOneWins(t *testing.T) {
	g := newGuard()
	ctx := context.Background()

	n, err := g.Create(ctx, "a", "", nil)
	require.NoError(t, err)

	const writers = 16
	var wins, conflicts int64
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.ConditionalUpdate(ctx, n.ID, 1, func(cur *note.Note) error {
				cur.Content = "winner"
				return nil
			})
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case note.IsConflict(err):
				atomic.AddInt64(&conflicts, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), wins)
	require.Equal(t, int64(writers-1), conflicts)

	got, err := g.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Version)
}

func TestMutatorErrorLeavesNoteUntouched(t *testing.T) {
	g := newGuard()
	ctx := context.Background()

	n, err := g.Create(ctx, "a", "orig", nil)
	require.NoError(t, err)

	_, err = g.ConditionalUpdate(ctx, n.ID, n.Version, func(cur *note.Note) error {
		cur.Content = "mutated"
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)

	got, err := g.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, "orig", got.Content)
	require.Equal(t, int64(1), got.Version)
}

func TestSoftDelete(t *testing.T) {
	g := newGuard()
	ctx := context.Background()

	n, err := g.Create(ctx, "a", "", nil)
	require.NoError(t, err)

	require.NoError(t, g.SoftDelete(ctx, n.ID))

	_, err = g.Get(ctx, n.ID)
	require.ErrorIs(t, err, note.ErrNotFound)

	_, err = g.ConditionalUpdate(ctx, n.ID, 2, func(cur *note.Note) error { return nil })
	require.ErrorIs(t, err, note.ErrNotFound)

	require.ErrorIs(t, g.SoftDelete(ctx, n.ID), note.ErrNotFound)
}

func TestListSkipsDeleted(t *testing.T) {
	g := newGuard()
	ctx := context.Background()

	a, err := g.Create(ctx, "a", "", nil)
	require.NoError(t, err)
	b, err := g.Create(ctx, "b", "", nil)
	require.NoError(t, err)
	require.NoError(t, g.SoftDelete(ctx, b.ID))

	notes, err := g.List(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, a.ID, notes[0].ID)
}
