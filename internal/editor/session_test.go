package editor

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/draft"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/kvstore"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/guard"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/service"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/patch"
)

// fakeClock drives debounce timers deterministically.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	stopped  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Advance moves the clock and fires due timers synchronously.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	var rest []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.deadline.After(c.now) {
			due = append(due, t)
		} else if !t.stopped {
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

// countingClient tallies which save path a session took.
type countingClient struct {
	Client
	updates int32
	patches int32
}

func (c *countingClient) Update(ctx context.Context, id string, in service.UpdateInput) (*note.Note, error) {
	atomic.AddInt32(&c.updates, 1)
	return c.Client.Update(ctx, id, in)
}

func (c *countingClient) Patch(ctx context.Context, id string, ops []patch.Op, version int64) (*note.Note, error) {
	atomic.AddInt32(&c.patches, 1)
	return c.Client.Patch(ctx, id, ops, version)
}

// failingClient injects a transport-style failure.
type failingClient struct {
	Client
	err error
}

func (c *failingClient) Update(ctx context.Context, id string, in service.UpdateInput) (*note.Note, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.Client.Update(ctx, id, in)
}

func (c *failingClient) Patch(ctx context.Context, id string, ops []patch.Op, version int64) (*note.Note, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.Client.Patch(ctx, id, ops, version)
}

// gateClient blocks a save mid-flight so the test can interleave edits.
type gateClient struct {
	Client
	entered chan struct{}
	release chan struct{}
}

func (c *gateClient) Update(ctx context.Context, id string, in service.UpdateInput) (*note.Note, error) {
	c.entered <- struct{}{}
	<-c.release
	return c.Client.Update(ctx, id, in)
}

type fixture struct {
	svc    *service.Service
	drafts *draft.Buffer
	clock  *fakeClock
	note   *note.Note
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	svc := service.New(guard.New(kvstore.NewMemory()))
	n, err := svc.Create(context.Background(), service.CreateInput{Title: "draft me", Content: "first line"})
	require.NoError(t, err)
	b, err := draft.Open(filepath.Join(t.TempDir(), "drafts.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return &fixture{svc: svc, drafts: b, clock: newFakeClock(), note: n}
}

func (f *fixture) open(t *testing.T, client Client) *Session {
	t.Helper()
	s, err := Open(context.Background(), client, f.drafts, f.note.ID, Options{Clock: f.clock})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestAutosaveFiresAfterDebounce(t *testing.T) {
	f := newFixture(t)
	cc := &countingClient{Client: f.svc}
	s := f.open(t, cc)
	ctx := context.Background()

	require.NoError(t, s.Edit(ctx, "draft me", "first line, second thought"))
	require.Equal(t, StateUnsaved, s.State())

	f.clock.Advance(time.Second)
	require.Equal(t, StateUnsaved, s.State())

	// another keystroke resets the window
	require.NoError(t, s.Edit(ctx, "draft me", "first line, third thought"))
	f.clock.Advance(DefaultDebounce - 100*time.Millisecond)
	require.Equal(t, StateUnsaved, s.State())

	f.clock.Advance(100 * time.Millisecond)
	require.Equal(t, StateSaved, s.State())
	require.Equal(t, int32(1), atomic.LoadInt32(&cc.patches))
	require.Equal(t, int32(0), atomic.LoadInt32(&cc.updates))

	got, err := f.svc.Get(ctx, f.note.ID)
	require.NoError(t, err)
	require.Equal(t, "first line, third thought", got.Content)
	require.Equal(t, int64(2), got.Version)

	// draft cleared, history recorded
	d, err := f.drafts.LoadDraft(ctx, f.note.ID)
	require.NoError(t, err)
	require.Nil(t, d)
	entries, err := f.drafts.History(ctx, f.note.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1), entries[0].FromVersion)
}

func TestManualSaveIsFullAndCancelsTimer(t *testing.T) {
	f := newFixture(t)
	cc := &countingClient{Client: f.svc}
	s := f.open(t, cc)
	ctx := context.Background()

	require.NoError(t, s.Edit(ctx, "renamed", "first line"))
	require.NoError(t, s.SaveNow(ctx))
	require.Equal(t, StateSaved, s.State())
	require.Equal(t, int32(1), atomic.LoadInt32(&cc.updates))
	require.Equal(t, int32(0), atomic.LoadInt32(&cc.patches))

	// the armed autosave must not fire a second save
	f.clock.Advance(2 * DefaultDebounce)
	require.Equal(t, int32(1), atomic.LoadInt32(&cc.updates)+atomic.LoadInt32(&cc.patches))
}

func TestLargeDiffFallsBackToFullSave(t *testing.T) {
	f := newFixture(t)
	cc := &countingClient{Client: f.svc}
	s := f.open(t, cc)
	ctx := context.Background()

	tags := make([]string, DefaultPatchThreshold)
	for i := range tags {
		tags[i] = string(rune('a' + i))
	}
	require.NoError(t, s.SetTags(ctx, tags))

	f.clock.Advance(DefaultDebounce)
	require.Equal(t, StateSaved, s.State())
	require.Equal(t, int32(1), atomic.LoadInt32(&cc.updates))
	require.Equal(t, int32(0), atomic.LoadInt32(&cc.patches))
}

func TestEditDuringSaveRunsFollowUpCycle(t *testing.T) {
	f := newFixture(t)
	gc := &gateClient{Client: f.svc, entered: make(chan struct{}), release: make(chan struct{})}
	s := f.open(t, gc)
	ctx := context.Background()

	require.NoError(t, s.Edit(ctx, "draft me", "v2 content"))

	done := make(chan error, 1)
	go func() { done <- s.SaveNow(ctx) }()
	<-gc.entered
	require.Equal(t, StateSaving, s.State())

	// a keystroke lands while the save is in flight
	require.NoError(t, s.Edit(ctx, "draft me", "v3 content"))

	close(gc.release)
	require.NoError(t, <-done)

	// first save landed, follow-up is pending behind the debounce
	require.Equal(t, StateUnsaved, s.State())
	f.clock.Advance(DefaultDebounce)
	require.Equal(t, StateSaved, s.State())

	got, err := f.svc.Get(ctx, f.note.ID)
	require.NoError(t, err)
	require.Equal(t, "v3 content", got.Content)
	require.Equal(t, int64(3), got.Version)
}

func TestConcurrentEditConflict(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, f.svc)
	ctx := context.Background()

	// another device saves first
	_, err := f.svc.Update(ctx, f.note.ID, service.UpdateInput{
		Content: strptr("edited elsewhere"), Version: 1,
	})
	require.NoError(t, err)

	require.NoError(t, s.Edit(ctx, "draft me", "edited here"))
	f.clock.Advance(DefaultDebounce)

	require.Equal(t, StateConflict, s.State())
	c := s.Conflict()
	require.NotNil(t, c)
	require.Equal(t, int64(2), c.Server.Version)
	require.Equal(t, "edited elsewhere", c.Server.Content)
	require.Equal(t, "edited here", c.LocalContent)
	require.True(t, c.ContentDiverged())
	require.False(t, c.TitleDiverged())

	// local work is still buffered
	d, err := f.drafts.LoadDraft(ctx, f.note.ID)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, "edited here", d.Content)
}

func strptr(v string) *string { return &v }

func TestResolveMergeBothKeepsEverything(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, f.svc)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, f.note.ID, service.UpdateInput{Content: strptr("server side"), Version: 1})
	require.NoError(t, err)
	require.NoError(t, s.Edit(ctx, "draft me", "local side"))
	f.clock.Advance(DefaultDebounce)
	require.Equal(t, StateConflict, s.State())

	require.NoError(t, s.Resolve(ctx, ResolutionMergeBoth))
	require.Equal(t, StateSaved, s.State())
	require.Nil(t, s.Conflict())

	got, err := f.svc.Get(ctx, f.note.ID)
	require.NoError(t, err)
	require.Equal(t, MergeContent("server side", "local side"), got.Content)
	require.Contains(t, got.Content, "server side")
	require.Contains(t, got.Content, "local side")
	require.Equal(t, int64(3), got.Version)

	d, err := f.drafts.LoadDraft(ctx, f.note.ID)
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestResolveAcceptServerDiscardsLocal(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, f.svc)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, f.note.ID, service.UpdateInput{Content: strptr("server side"), Version: 1})
	require.NoError(t, err)
	require.NoError(t, s.Edit(ctx, "draft me", "local side"))
	f.clock.Advance(DefaultDebounce)
	require.Equal(t, StateConflict, s.State())

	require.NoError(t, s.Resolve(ctx, ResolutionAcceptServer))
	require.Equal(t, StateSaved, s.State())
	require.Equal(t, "server side", s.Note().Content)

	// nothing written: server still at version 2
	got, err := f.svc.Get(ctx, f.note.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Version)
}

func TestResolveForceOverwrite(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, f.svc)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, f.note.ID, service.UpdateInput{Content: strptr("server side"), Version: 1})
	require.NoError(t, err)
	require.NoError(t, s.Edit(ctx, "draft me", "local side"))
	f.clock.Advance(DefaultDebounce)
	require.Equal(t, StateConflict, s.State())

	require.NoError(t, s.Resolve(ctx, ResolutionForceOverwrite))

	got, err := f.svc.Get(ctx, f.note.ID)
	require.NoError(t, err)
	require.Equal(t, "local side", got.Content)
	require.Equal(t, int64(3), got.Version)
}

func TestDismissKeepsLocalEditsQuiet(t *testing.T) {
	f := newFixture(t)
	cc := &countingClient{Client: f.svc}
	s := f.open(t, cc)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, f.note.ID, service.UpdateInput{Content: strptr("server side"), Version: 1})
	require.NoError(t, err)
	require.NoError(t, s.Edit(ctx, "draft me", "local side"))
	f.clock.Advance(DefaultDebounce)
	require.Equal(t, StateConflict, s.State())
	saves := atomic.LoadInt32(&cc.updates) + atomic.LoadInt32(&cc.patches)

	s.Dismiss()
	require.Equal(t, StateUnsaved, s.State())
	require.Nil(t, s.Conflict())

	// no timer armed: time passing saves nothing
	f.clock.Advance(10 * DefaultDebounce)
	require.Equal(t, saves, atomic.LoadInt32(&cc.updates)+atomic.LoadInt32(&cc.patches))
}

func TestSaveFailureKeepsDraft(t *testing.T) {
	f := newFixture(t)
	fc := &failingClient{Client: f.svc, err: context.DeadlineExceeded}
	s := f.open(t, fc)
	ctx := context.Background()

	require.NoError(t, s.Edit(ctx, "draft me", "precious work"))
	f.clock.Advance(DefaultDebounce)

	require.Equal(t, StateError, s.State())
	require.ErrorIs(t, s.Err(), context.DeadlineExceeded)

	d, err := f.drafts.LoadDraft(ctx, f.note.ID)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, "precious work", d.Content)

	// network recovers, manual save succeeds and clears the draft
	fc.err = nil
	require.NoError(t, s.SaveNow(ctx))
	require.Equal(t, StateSaved, s.State())
	d, err = f.drafts.LoadDraft(ctx, f.note.ID)
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestOpenRestoresFreshDraft(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, f.svc)
	ctx := context.Background()

	require.NoError(t, s.Edit(ctx, "draft me", "unsaved before crash"))
	s.Close()

	// simulated restart: same draft db, new session
	s2, err := Open(ctx, f.svc, f.drafts, f.note.ID, Options{Clock: f.clock})
	require.NoError(t, err)
	defer s2.Close()

	require.Equal(t, StateUnsaved, s2.State())
	require.NoError(t, s2.SaveNow(ctx))

	got, err := f.svc.Get(ctx, f.note.ID)
	require.NoError(t, err)
	require.Equal(t, "unsaved before crash", got.Content)
}

func TestOpenWithStaleDraftSurfacesConflict(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, f.svc)
	ctx := context.Background()

	require.NoError(t, s.Edit(ctx, "draft me", "offline edit"))
	s.Close()

	// server moved while the draft sat on disk
	_, err := f.svc.Update(ctx, f.note.ID, service.UpdateInput{Content: strptr("moved on"), Version: 1})
	require.NoError(t, err)

	s2, err := Open(ctx, f.svc, f.drafts, f.note.ID, Options{Clock: f.clock})
	require.NoError(t, err)
	defer s2.Close()

	require.Equal(t, StateConflict, s2.State())
	c := s2.Conflict()
	require.NotNil(t, c)
	require.Equal(t, "moved on", c.Server.Content)
	require.Equal(t, "offline edit", c.LocalContent)
}

func TestReplayHistory(t *testing.T) {
	snapshot := note.Note{ID: "n1", Title: "t", Content: "v1", Version: 1}
	entries := []draft.HistoryEntry{
		{FromVersion: 2, Ops: []patch.Op{{Kind: patch.KindReplace, Path: "/content", Value: "v3"}}},
		{FromVersion: 1, Ops: []patch.Op{{Kind: patch.KindReplace, Path: "/content", Value: "v2"}}},
	}

	got, err := ReplayHistory(snapshot, entries, 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "v3", got.Content)
	require.Equal(t, int64(3), got.Version)

	// same version: snapshot unchanged
	got, err = ReplayHistory(snapshot, entries, 1)
	require.NoError(t, err)
	require.Equal(t, "v1", got.Content)

	// chain does not reach that far
	got, err = ReplayHistory(snapshot, entries, 5)
	require.NoError(t, err)
	require.Nil(t, got)

	// rollback is out of scope for a forward replay
	got, err = ReplayHistory(note.Note{Version: 4}, entries, 2)
	require.NoError(t, err)
	require.Nil(t, got)
}
