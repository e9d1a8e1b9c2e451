package editor

import (
	"context"
	"errors"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/service"
	"github.com/cloudnote/cloudnote/backend/go-services/pkg/metrics"
)

// Resolution is the user's choice when local and server versions diverge.
type Resolution string

const (
	// ResolutionAcceptServer discards local edits and adopts the server state.
	ResolutionAcceptServer Resolution = "accept_server"
	// ResolutionForceOverwrite replaces the server state with local edits.
	ResolutionForceOverwrite Resolution = "force_overwrite"
	// ResolutionMergeBoth keeps both contents, server first, clearly labelled.
	ResolutionMergeBoth Resolution = "merge_both"
)

var ErrNoConflict = errors.New("no conflict to resolve")

// Conflict describes a rejected save: the server's current state, the
// baseline the local edits were made against, and the local edits
// themselves. Baseline is nil when the conflict was detected at open time
// from a stale draft.
type Conflict struct {
	Server       *note.Note
	Baseline     *note.Note
	LocalTitle   string
	LocalContent string
}

func (c *Conflict) TitleDiverged() bool {
	return c.Server.Title != c.LocalTitle
}

func (c *Conflict) ContentDiverged() bool {
	return c.Server.Content != c.LocalContent
}

const (
	mergeServerHeader = "=== Server version ==="
	mergeLocalHeader  = "=== Local version ==="
)

// MergeContent concatenates both versions under labelled headers. Nothing
// is lost; the user untangles the result in the editor.
func MergeContent(server, local string) string {
	return mergeServerHeader + "\n\n" + server + "\n\n" + mergeLocalHeader + "\n\n" + local
}

// Resolve applies the chosen resolution and returns the session to normal
// operation. ForceOverwrite and MergeBoth write at the server's current
// version; if the server moved again in the meantime the write conflicts
// once more and the session re-enters the conflict state.
func (s *Session) Resolve(ctx context.Context, r Resolution) error {
	s.mu.Lock()
	if s.conflict == nil {
		s.mu.Unlock()
		return ErrNoConflict
	}
	c := s.conflict
	s.mu.Unlock()

	switch r {
	case ResolutionAcceptServer:
		s.mu.Lock()
		s.base = c.Server.Clone()
		s.title = c.Server.Title
		s.content = c.Server.Content
		s.tags = append([]string(nil), c.Server.Tags...)
		s.conflict = nil
		s.state = StateSaved
		s.mu.Unlock()
		if s.drafts != nil {
			if err := s.drafts.ClearDraft(ctx, s.noteID); err != nil {
				return err
			}
		}

	case ResolutionForceOverwrite, ResolutionMergeBoth:
		title := c.LocalTitle
		content := c.LocalContent
		if r == ResolutionMergeBoth {
			if c.ContentDiverged() {
				content = MergeContent(c.Server.Content, c.LocalContent)
			}
			if !c.TitleDiverged() {
				title = c.Server.Title
			}
		}
		saved, err := s.client.Update(ctx, s.noteID, service.UpdateInput{
			Title:   &title,
			Content: &content,
			Version: c.Server.Version,
		})
		if err != nil {
			if note.IsConflict(err) {
				s.mu.Lock()
				s.conflict = nil
				s.mu.Unlock()
				return s.enterConflict(ctx, *c.Server)
			}
			s.mu.Lock()
			s.state = StateError
			s.lastErr = err
			s.mu.Unlock()
			return err
		}
		s.mu.Lock()
		s.base = saved
		s.title = saved.Title
		s.content = saved.Content
		s.tags = append([]string(nil), saved.Tags...)
		s.conflict = nil
		s.state = StateSaved
		s.mu.Unlock()
		if s.drafts != nil {
			if err := s.drafts.ClearDraft(ctx, s.noteID); err != nil {
				return err
			}
		}

	default:
		return errors.New("unknown resolution: " + string(r))
	}

	metrics.ConflictResolutions.WithLabelValues(string(r)).Inc()
	return nil
}

// Dismiss closes the conflict prompt without resolving. The session drops
// back to unsaved with local edits intact; no autosave is armed, so nothing
// happens until the user edits again or resolves.
func (s *Session) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflict == nil {
		return
	}
	s.conflict = nil
	s.state = StateUnsaved
}
