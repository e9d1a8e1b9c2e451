// Package share implements public read-only note sharing: short base62
// slugs or custom aliases, optional password protection and expiry, and a
// visit counter.
package share

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"regexp"
	"sort"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/kvstore"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/guard"
)

const keyPrefix = "share:"

const (
	slugAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	slugLength   = 8
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,64}$`)

var (
	ErrNotFound         = errors.New("share not found")
	ErrExpired          = errors.New("share link has expired")
	ErrPasswordRequired = errors.New("share is password protected")
	ErrBadPassword      = errors.New("wrong password")
	ErrBadAlias         = errors.New("alias must be 3-64 characters of letters, digits, - or _")
	ErrAliasTaken       = errors.New("alias already in use")
)

type Share struct {
	Slug         string     `json:"slug"`
	NoteID       string     `json:"noteId"`
	PasswordHash []byte     `json:"-"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	VisitCount   int64      `json:"visitCount"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// record is the stored form; the password hash never leaves the package.
type record struct {
	Slug         string     `json:"slug"`
	NoteID       string     `json:"noteId"`
	PasswordHash []byte     `json:"passwordHash,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	VisitCount   int64      `json:"visitCount"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type CreateInput struct {
	NoteID      string
	CustomAlias string
	Password    string
	ExpiresIn   time.Duration
}

type Service struct {
	store kvstore.Store
	guard *guard.Guard
	now   func() time.Time
}

func NewService(store kvstore.Store, g *guard.Guard) *Service {
	return &Service{store: store, guard: g, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create publishes a share link for a note. A custom alias becomes the
// slug; otherwise a random base62 slug is generated.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Share, error) {
	if _, err := s.guard.Get(ctx, in.NoteID); err != nil {
		return nil, err
	}

	slug := in.CustomAlias
	if slug != "" {
		if !aliasPattern.MatchString(slug) {
			return nil, ErrBadAlias
		}
		if _, err := s.get(ctx, slug); err == nil {
			return nil, ErrAliasTaken
		}
	} else {
		var err error
		slug, err = s.freshSlug(ctx)
		if err != nil {
			return nil, err
		}
	}

	rec := record{
		Slug:      slug,
		NoteID:    in.NoteID,
		CreatedAt: s.now().UTC(),
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		rec.PasswordHash = hash
	}
	if in.ExpiresIn > 0 {
		t := s.now().UTC().Add(in.ExpiresIn)
		rec.ExpiresAt = &t
	}
	if err := s.put(ctx, &rec); err != nil {
		return nil, err
	}
	return rec.share(), nil
}

// Resolve looks up a slug, enforces expiry and password, bumps the visit
// counter and returns the shared note.
func (s *Service) Resolve(ctx context.Context, slug, password string) (*note.Note, error) {
	rec, err := s.get(ctx, slug)
	if err != nil {
		return nil, err
	}
	if rec.ExpiresAt != nil && !s.now().UTC().Before(*rec.ExpiresAt) {
		return nil, ErrExpired
	}
	if len(rec.PasswordHash) > 0 {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)) != nil {
			return nil, ErrBadPassword
		}
	}
	n, err := s.guard.Get(ctx, rec.NoteID)
	if err != nil {
		return nil, err
	}

	rec.VisitCount++
	if err := s.put(ctx, rec); err != nil {
		return nil, err
	}
	return n, nil
}

// List returns all shares sorted by creation time, newest first.
func (s *Service) List(ctx context.Context) ([]*Share, error) {
	keys, err := s.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	shares := make([]*Share, 0, len(keys))
	for _, k := range keys {
		raw, err := s.store.Get(ctx, k)
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		shares = append(shares, rec.share())
	}
	sort.Slice(shares, func(i, j int) bool {
		return shares[i].CreatedAt.After(shares[j].CreatedAt)
	})
	return shares, nil
}

func (s *Service) Delete(ctx context.Context, slug string) error {
	if _, err := s.get(ctx, slug); err != nil {
		return err
	}
	return s.store.Delete(ctx, keyPrefix+slug)
}

func (s *Service) freshSlug(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		slug, err := randomSlug()
		if err != nil {
			return "", err
		}
		if _, err := s.get(ctx, slug); errors.Is(err, ErrNotFound) {
			return slug, nil
		}
	}
	return "", errors.New("could not allocate a unique slug")
}

func randomSlug() (string, error) {
	max := big.NewInt(int64(len(slugAlphabet)))
	b := make([]byte, slugLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = slugAlphabet[n.Int64()]
	}
	return string(b), nil
}

func (r *record) share() *Share {
	return &Share{
		Slug:         r.Slug,
		NoteID:       r.NoteID,
		PasswordHash: r.PasswordHash,
		ExpiresAt:    r.ExpiresAt,
		VisitCount:   r.VisitCount,
		CreatedAt:    r.CreatedAt,
	}
}

func (s *Service) get(ctx context.Context, slug string) (*record, error) {
	raw, err := s.store.Get(ctx, keyPrefix+slug)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Service) put(ctx context.Context, rec *record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, keyPrefix+rec.Slug, raw)
}
