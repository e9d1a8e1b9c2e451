package tag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/kvstore"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/guard"
)

func newFixture() (*Service, *guard.Guard) {
	store := kvstore.NewMemory()
	g := guard.New(store)
	return NewService(store, g), g
}

func TestCreateValidates(t *testing.T) {
	svc, _ := newFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, "  ", "")
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.Create(ctx, "Work", "#ff0000")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "work", "#00ff00")
	require.ErrorIs(t, err, ErrNameTaken)
}

func TestListWithNoteCounts(t *testing.T) {
	svc, g := newFixture()
	ctx := context.Background()

	work, err := svc.Create(ctx, "work", "")
	require.NoError(t, err)
	home, err := svc.Create(ctx, "home", "")
	require.NoError(t, err)

	_, err = g.Create(ctx, "a", "", []string{work.ID})
	require.NoError(t, err)
	_, err = g.Create(ctx, "b", "", []string{work.ID, home.ID})
	require.NoError(t, err)

	tags, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	// sorted by name
	require.Equal(t, "home", tags[0].Name)
	require.Equal(t, 1, tags[0].NoteCount)
	require.Equal(t, "work", tags[1].Name)
	require.Equal(t, 2, tags[1].NoteCount)
}

func TestUpdateTag(t *testing.T) {
	svc, _ := newFixture()
	ctx := context.Background()

	tg, err := svc.Create(ctx, "work", "#fff")
	require.NoError(t, err)

	name := "projects"
	got, err := svc.Update(ctx, tg.ID, &name, nil)
	require.NoError(t, err)
	require.Equal(t, "projects", got.Name)
	require.Equal(t, "#fff", got.Color)

	_, err = svc.Update(ctx, "missing", &name, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteStripsTagFromNotes(t *testing.T) {
	svc, g := newFixture()
	ctx := context.Background()

	tg, err := svc.Create(ctx, "work", "")
	require.NoError(t, err)
	n, err := g.Create(ctx, "a", "", []string{tg.ID, "other"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, tg.ID))

	_, err = svc.Get(ctx, tg.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := g.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"other"}, got.Tags)
	// the strip is a normal versioned write
	require.Equal(t, int64(2), got.Version)
}
