// Package tag manages the tag catalogue. Notes reference tags by id; the
// catalogue stores the display name and color and derives usage counts from
// the live notes.
package tag

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/kvstore"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/guard"
)

const keyPrefix = "tag:"

var (
	ErrNotFound     = errors.New("tag not found")
	ErrNameRequired = errors.New("tag name is required")
	ErrNameTaken    = errors.New("tag name already in use")
)

type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	NoteCount int       `json:"noteCount"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	store kvstore.Store
	guard *guard.Guard
}

func NewService(store kvstore.Store, g *guard.Guard) *Service {
	return &Service{store: store, guard: g}
}

func (s *Service) Create(ctx context.Context, name, color string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	existing, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range existing {
		if strings.EqualFold(t.Name, name) {
			return nil, ErrNameTaken
		}
	}
	t := &Tag{
		ID:        uuid.NewString(),
		Name:      name,
		Color:     color,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Tag, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.noteCounts(ctx)
	if err != nil {
		return nil, err
	}
	t.NoteCount = counts[id]
	return t, nil
}

// List returns all tags sorted by name, each with its live note count.
func (s *Service) List(ctx context.Context) ([]*Tag, error) {
	tags, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.noteCounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		t.NoteCount = counts[t.ID]
	}
	sortByName(tags)
	return tags, nil
}

func (s *Service) Update(ctx context.Context, id string, name, color *string) (*Tag, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, ErrNameRequired
		}
		t.Name = trimmed
	}
	if color != nil {
		t.Color = *color
	}
	if err := s.put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes the tag and strips it from every note that carries it.
// Each stripped note goes through the usual version-checked update.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.get(ctx, id); err != nil {
		return err
	}
	notes, err := s.guard.List(ctx)
	if err != nil {
		return err
	}
	for _, n := range notes {
		if !n.HasTag(id) {
			continue
		}
		_, err := s.guard.ConditionalUpdate(ctx, n.ID, n.Version, func(cur *note.Note) error {
			kept := cur.Tags[:0]
			for _, tid := range cur.Tags {
				if tid != id {
					kept = append(kept, tid)
				}
			}
			cur.Tags = kept
			return nil
		})
		if err != nil && !note.IsConflict(err) && !errors.Is(err, note.ErrNotFound) {
			return err
		}
		// a concurrent edit wins the race; the orphaned reference is
		// harmless and disappears on the note's next save
	}
	return s.store.Delete(ctx, keyPrefix+id)
}

func (s *Service) noteCounts(ctx context.Context) (map[string]int, error) {
	notes, err := s.guard.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, n := range notes {
		for _, tid := range n.Tags {
			counts[tid]++
		}
	}
	return counts, nil
}

func (s *Service) get(ctx context.Context, id string) (*Tag, error) {
	raw, err := s.store.Get(ctx, keyPrefix+id)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var t Tag
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) list(ctx context.Context) ([]*Tag, error) {
	keys, err := s.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	tags := make([]*Tag, 0, len(keys))
	for _, k := range keys {
		raw, err := s.store.Get(ctx, k)
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var t Tag
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		tags = append(tags, &t)
	}
	return tags, nil
}

func (s *Service) put(ctx context.Context, t *Tag) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, keyPrefix+t.ID, raw)
}

func sortByName(tags []*Tag) {
	sort.Slice(tags, func(i, j int) bool {
		return strings.ToLower(tags[i].Name) < strings.ToLower(tags[j].Name)
	})
}
