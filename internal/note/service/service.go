// Package service implements note business logic on top of the version
// guard: input validation, list filtering and pagination, and the two save
// paths (full update and incremental patch).
package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/guard"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/patch"
	"github.com/cloudnote/cloudnote/backend/go-services/pkg/metrics"
)

var ErrTitleRequired = errors.New("title is required")

const (
	defaultLimit = 20
	maxLimit     = 100
)

type Service struct {
	guard *guard.Guard
}

func New(g *guard.Guard) *Service {
	return &Service{guard: g}
}

type CreateInput struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// UpdateInput is a full save. Nil Title/Content mean "leave unchanged";
// a nil Tags slice likewise. Version is the client's last known version.
type UpdateInput struct {
	Title   *string  `json:"title"`
	Content *string  `json:"content"`
	Tags    []string `json:"tags"`
	Version int64    `json:"version"`
}

type ListInput struct {
	Page   int
	Limit  int
	Tag    string
	Search string
}

type ListResult struct {
	Items []note.ListItem `json:"items"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*note.Note, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrTitleRequired
	}
	return s.guard.Create(ctx, in.Title, in.Content, in.Tags)
}

func (s *Service) Get(ctx context.Context, id string) (*note.Note, error) {
	return s.guard.Get(ctx, id)
}

// List returns live notes sorted by UpdatedAt descending, optionally
// filtered by tag and a case-insensitive title/content search.
func (s *Service) List(ctx context.Context, in ListInput) (*ListResult, error) {
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 {
		in.Limit = defaultLimit
	}
	if in.Limit > maxLimit {
		in.Limit = maxLimit
	}

	notes, err := s.guard.List(ctx)
	if err != nil {
		return nil, err
	}

	filtered := notes[:0]
	search := strings.ToLower(in.Search)
	for _, n := range notes {
		if in.Tag != "" && !n.HasTag(in.Tag) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(n.Title), search) &&
			!strings.Contains(strings.ToLower(n.Content), search) {
			continue
		}
		filtered = append(filtered, n)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].UpdatedAt.After(filtered[j].UpdatedAt)
	})

	total := len(filtered)
	start := (in.Page - 1) * in.Limit
	if start > total {
		start = total
	}
	end := start + in.Limit
	if end > total {
		end = total
	}

	items := make([]note.ListItem, 0, end-start)
	for _, n := range filtered[start:end] {
		items = append(items, n.ListItem())
	}
	return &ListResult{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

// Update performs a full save at the given version.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*note.Note, error) {
	n, err := s.guard.ConditionalUpdate(ctx, id, in.Version, func(cur *note.Note) error {
		if in.Title != nil {
			if strings.TrimSpace(*in.Title) == "" {
				return ErrTitleRequired
			}
			cur.Title = *in.Title
		}
		if in.Content != nil {
			cur.Content = *in.Content
		}
		if in.Tags != nil {
			cur.Tags = append([]string(nil), in.Tags...)
		}
		return nil
	})
	s.countSave("full", err)
	return n, err
}

// Patch applies diff ops at the given version. Ops that no longer fit the
// stored note surface as a conflict carrying the current server version.
func (s *Service) Patch(ctx context.Context, id string, ops []patch.Op, version int64) (*note.Note, error) {
	n, err := s.guard.ConditionalUpdate(ctx, id, version, func(cur *note.Note) error {
		next, err := patch.Apply(*cur, ops)
		if err != nil {
			return err
		}
		*cur = next
		return nil
	})
	s.countSave("patch", err)
	return n, err
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.guard.SoftDelete(ctx, id)
}

func (s *Service) countSave(mode string, err error) {
	switch {
	case err == nil:
		metrics.NoteSaves.WithLabelValues(mode, "ok").Inc()
	case note.IsConflict(err):
		metrics.NoteSaves.WithLabelValues(mode, "conflict").Inc()
		metrics.VersionConflicts.Inc()
	default:
		metrics.NoteSaves.WithLabelValues(mode, "error").Inc()
	}
}
