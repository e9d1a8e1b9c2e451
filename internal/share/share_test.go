package share

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/kvstore"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/guard"
)

type fixture struct {
	svc  *Service
	g    *guard.Guard
	note *note.Note
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := kvstore.NewMemory()
	g := guard.New(store)
	n, err := g.Create(context.Background(), "shared note", "body", nil)
	require.NoError(t, err)
	f := &fixture{g: g, note: n, now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f.svc = NewService(store, g).WithClock(func() time.Time { return f.now })
	return f
}

func TestCreateAndResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sh, err := f.svc.Create(ctx, CreateInput{NoteID: f.note.ID})
	require.NoError(t, err)
	require.Len(t, sh.Slug, 8)

	got, err := f.svc.Resolve(ctx, sh.Slug, "")
	require.NoError(t, err)
	require.Equal(t, "shared note", got.Title)

	// visit counted
	_, err = f.svc.Resolve(ctx, sh.Slug, "")
	require.NoError(t, err)
	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(2), list[0].VisitCount)
}

func TestCreateForMissingNote(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateInput{NoteID: "nope"})
	require.ErrorIs(t, err, note.ErrNotFound)
}

func TestCustomAlias(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sh, err := f.svc.Create(ctx, CreateInput{NoteID: f.note.ID, CustomAlias: "my-note"})
	require.NoError(t, err)
	require.Equal(t, "my-note", sh.Slug)

	_, err = f.svc.Create(ctx, CreateInput{NoteID: f.note.ID, CustomAlias: "my-note"})
	require.ErrorIs(t, err, ErrAliasTaken)

	_, err = f.svc.Create(ctx, CreateInput{NoteID: f.note.ID, CustomAlias: "a!"})
	require.ErrorIs(t, err, ErrBadAlias)
}

func TestPasswordProtection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sh, err := f.svc.Create(ctx, CreateInput{NoteID: f.note.ID, Password: "s3cret"})
	require.NoError(t, err)

	_, err = f.svc.Resolve(ctx, sh.Slug, "")
	require.ErrorIs(t, err, ErrPasswordRequired)

	_, err = f.svc.Resolve(ctx, sh.Slug, "wrong")
	require.ErrorIs(t, err, ErrBadPassword)

	got, err := f.svc.Resolve(ctx, sh.Slug, "s3cret")
	require.NoError(t, err)
	require.Equal(t, f.note.ID, got.ID)
}

func TestExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sh, err := f.svc.Create(ctx, CreateInput{NoteID: f.note.ID, ExpiresIn: time.Hour})
	require.NoError(t, err)

	_, err = f.svc.Resolve(ctx, sh.Slug, "")
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.svc.Resolve(ctx, sh.Slug, "")
	require.ErrorIs(t, err, ErrExpired)
}

func TestResolveDeletedNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sh, err := f.svc.Create(ctx, CreateInput{NoteID: f.note.ID})
	require.NoError(t, err)
	require.NoError(t, f.g.SoftDelete(ctx, f.note.ID))

	_, err = f.svc.Resolve(ctx, sh.Slug, "")
	require.ErrorIs(t, err, note.ErrNotFound)
}

func TestDeleteShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sh, err := f.svc.Create(ctx, CreateInput{NoteID: f.note.ID})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, sh.Slug))
	require.ErrorIs(t, f.svc.Delete(ctx, sh.Slug), ErrNotFound)

	_, err = f.svc.Resolve(ctx, sh.Slug, "")
	require.ErrorIs(t, err, ErrNotFound)
}
