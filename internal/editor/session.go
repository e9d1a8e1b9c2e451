// Package editor implements the client-side editing session: debounced
// autosave, draft buffering, save orchestration and conflict resolution
// against the notes API.
package editor

import (
	"context"
	"sync"
	"time"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/draft"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/service"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/patch"
)

// State is the session's save status, driving the editor's status display.
type State string

const (
	StateIdle     State = "idle"
	StateUnsaved  State = "unsaved"
	StateSaving   State = "saving"
	StateSaved    State = "saved"
	StateError    State = "error"
	StateConflict State = "conflict"
)

// Client is the note API surface a session needs. *service.Service
// satisfies it directly; HTTPClient provides it over the wire.
type Client interface {
	Get(ctx context.Context, id string) (*note.Note, error)
	Update(ctx context.Context, id string, in service.UpdateInput) (*note.Note, error)
	Patch(ctx context.Context, id string, ops []patch.Op, version int64) (*note.Note, error)
}

const (
	// DefaultDebounce is the autosave delay after the last keystroke.
	DefaultDebounce = 2 * time.Second
	// DefaultPatchThreshold is the op count at or above which a save is
	// sent as a full update instead of a patch.
	DefaultPatchThreshold = 10
)

// Options tune a session. Zero values select the defaults.
type Options struct {
	Debounce       time.Duration
	PatchThreshold int
	Clock          Clock
}

// Session is the editing session for one note. All methods are safe for
// concurrent use; network calls happen outside the lock.
type Session struct {
	client    Client
	drafts    *draft.Buffer
	clock     Clock
	debounce  time.Duration
	threshold int

	mu       sync.Mutex
	noteID   string
	base     *note.Note // last server-acknowledged state
	title    string
	content  string
	tags     []string
	state    State
	lastErr  error
	conflict *Conflict
	timer    Timer
	pending  bool // edits arrived while a save was in flight
	closed   bool
}

// Open fetches the note and restores any buffered draft. A draft based on
// the current server version becomes unsaved local edits; a draft based on
// an older version means the server moved while we held unsaved work, which
// surfaces as a conflict to resolve.
func Open(ctx context.Context, client Client, drafts *draft.Buffer, noteID string, opts Options) (*Session, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PatchThreshold <= 0 {
		opts.PatchThreshold = DefaultPatchThreshold
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}

	n, err := client.Get(ctx, noteID)
	if err != nil {
		return nil, err
	}

	s := &Session{
		client:    client,
		drafts:    drafts,
		clock:     opts.Clock,
		debounce:  opts.Debounce,
		threshold: opts.PatchThreshold,
		noteID:    noteID,
		base:      n,
		title:     n.Title,
		content:   n.Content,
		tags:      append([]string(nil), n.Tags...),
		state:     StateIdle,
	}

	if drafts != nil {
		d, err := drafts.LoadDraft(ctx, noteID)
		if err != nil {
			return nil, err
		}
		if d != nil {
			switch {
			case d.BaseVersion == n.Version:
				s.title = d.Title
				s.content = d.Content
				s.state = StateUnsaved
			default:
				s.state = StateConflict
				s.conflict = &Conflict{
					Server:       n.Clone(),
					Baseline:     nil,
					LocalTitle:   d.Title,
					LocalContent: d.Content,
				}
				s.title = d.Title
				s.content = d.Content
			}
		}
	}
	return s, nil
}

// State returns the current save status.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error from the last failed save, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Conflict returns the pending conflict, or nil.
func (s *Session) Conflict() *Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflict
}

// Note returns the last server-acknowledged note.
func (s *Session) Note() *note.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.Clone()
}

// Edit records new local title and content, buffers a draft, and arms the
// autosave timer. Each call resets the timer, so the save fires only after
// the debounce window passes without further edits.
func (s *Session) Edit(ctx context.Context, title, content string) error {
	s.mu.Lock()
	if s.closed || s.state == StateConflict {
		s.mu.Unlock()
		return nil
	}
	s.title = title
	s.content = content
	if s.state == StateSaving {
		s.pending = true
	} else {
		s.state = StateUnsaved
		s.armTimerLocked()
	}
	d := s.draftLocked()
	s.mu.Unlock()

	return s.saveDraft(ctx, d)
}

// SetTags records a new tag set for the note, same rules as Edit.
func (s *Session) SetTags(ctx context.Context, tags []string) error {
	s.mu.Lock()
	if s.closed || s.state == StateConflict {
		s.mu.Unlock()
		return nil
	}
	s.tags = append([]string(nil), tags...)
	if s.state == StateSaving {
		s.pending = true
	} else {
		s.state = StateUnsaved
		s.armTimerLocked()
	}
	d := s.draftLocked()
	s.mu.Unlock()

	return s.saveDraft(ctx, d)
}

// SaveNow saves immediately as a full update, cancelling any armed
// autosave. Manual saves never go through the patch path.
func (s *Session) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateSaving {
		s.pending = true
		s.mu.Unlock()
		return nil
	}
	s.stopTimerLocked()
	s.mu.Unlock()
	return s.save(ctx, true)
}

// Close stops the autosave timer. Buffered drafts stay on disk.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimerLocked()
}

func (s *Session) armTimerLocked() {
	s.stopTimerLocked()
	s.timer = s.clock.AfterFunc(s.debounce, s.autosave)
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) draftLocked() draft.Draft {
	return draft.Draft{
		NoteID:      s.noteID,
		Title:       s.title,
		Content:     s.content,
		BaseVersion: s.base.Version,
		SavedAt:     s.clock.Now(),
	}
}

func (s *Session) saveDraft(ctx context.Context, d draft.Draft) error {
	if s.drafts == nil {
		return nil
	}
	return s.drafts.SaveDraft(ctx, d)
}

func (s *Session) autosave() {
	s.mu.Lock()
	if s.closed || s.state != StateUnsaved {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	// errors and conflicts land in the session state
	_ = s.save(context.Background(), false)
}

// localNote builds the note the editor currently shows, as a diff target.
func (s *Session) localNoteLocked() note.Note {
	local := *s.base
	local.Title = s.title
	local.Content = s.content
	local.Tags = append([]string(nil), s.tags...)
	return local
}

// save runs one save cycle. Manual saves always send the full note;
// autosaves send a patch when the diff is small enough. Only one save is in
// flight at a time; edits arriving meanwhile set pending and trigger a new
// cycle once this one lands.
func (s *Session) save(ctx context.Context, manual bool) error {
	s.mu.Lock()
	if s.closed || s.state == StateSaving || s.state == StateConflict {
		s.mu.Unlock()
		return nil
	}
	base := *s.base
	local := s.localNoteLocked()
	ops := patch.Diff(base, local)
	if len(ops) == 0 {
		if s.state == StateUnsaved {
			s.state = StateSaved
		}
		s.mu.Unlock()
		return nil
	}
	s.state = StateSaving
	s.lastErr = nil
	s.mu.Unlock()

	var (
		saved *note.Note
		err   error
	)
	if manual || len(ops) >= s.threshold {
		saved, err = s.client.Update(ctx, s.noteID, service.UpdateInput{
			Title:   &local.Title,
			Content: &local.Content,
			Tags:    local.Tags,
			Version: base.Version,
		})
	} else {
		saved, err = s.client.Patch(ctx, s.noteID, ops, base.Version)
	}

	if err != nil {
		if note.IsConflict(err) || patch.IsApplyError(err) {
			return s.enterConflict(ctx, base)
		}
		s.mu.Lock()
		s.state = StateError
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.base = saved
	s.state = StateSaved
	rearm := s.pending
	s.pending = false
	if rearm {
		s.state = StateUnsaved
		s.armTimerLocked()
	}
	s.mu.Unlock()

	if s.drafts != nil {
		if rearm {
			// newer edits exist, rebase the draft instead of clearing it
			s.mu.Lock()
			d := s.draftLocked()
			s.mu.Unlock()
			if derr := s.drafts.SaveDraft(ctx, d); derr != nil {
				return derr
			}
		} else if derr := s.drafts.ClearDraft(ctx, s.noteID); derr != nil {
			return derr
		}
		if derr := s.drafts.AppendHistory(ctx, s.noteID, draft.HistoryEntry{
			FromVersion: base.Version,
			Ops:         ops,
			CreatedAt:   s.clock.Now(),
		}); derr != nil {
			return derr
		}
	}
	return nil
}

// enterConflict fetches the server's current state and parks the session in
// the conflict state. Local edits stay in the draft buffer untouched.
func (s *Session) enterConflict(ctx context.Context, baseline note.Note) error {
	server, err := s.client.Get(ctx, s.noteID)
	if err != nil {
		s.mu.Lock()
		s.state = StateError
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state = StateConflict
	s.pending = false
	s.stopTimerLocked()
	s.conflict = &Conflict{
		Server:       server.Clone(),
		Baseline:     baseline.Clone(),
		LocalTitle:   s.title,
		LocalContent: s.content,
	}
	s.mu.Unlock()
	return nil
}
