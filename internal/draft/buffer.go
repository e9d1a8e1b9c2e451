// Package draft persists unsaved editor content and a bounded history of
// applied patches in a local sqlite database, so work survives process
// restarts and failed saves.
package draft

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/patch"
)

// DefaultMaxHistory bounds the per-note patch history.
const DefaultMaxHistory = 10

// Draft is locally buffered content for one note, tagged with the server
// version it was derived from.
type Draft struct {
	NoteID      string
	Title       string
	Content     string
	BaseVersion int64
	SavedAt     time.Time
}

// HistoryEntry records one successfully saved patch: the ops and the version
// they were applied against.
type HistoryEntry struct {
	FromVersion int64
	Ops         []patch.Op
	CreatedAt   time.Time
}

// Buffer stores drafts and history. Safe for concurrent use; database/sql
// serializes access to the single sqlite connection pool.
type Buffer struct {
	db         *sql.DB
	maxHistory int
}

// Open opens (creating if needed) the draft database at path. Use
// ":memory:" for an ephemeral buffer. maxHistory <= 0 selects the default.
func Open(path string, maxHistory int) (*Buffer, error) {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open draft db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Buffer{db: db, maxHistory: maxHistory}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS drafts (
			note_id      TEXT PRIMARY KEY,
			title        TEXT NOT NULL,
			content      TEXT NOT NULL,
			base_version INTEGER NOT NULL,
			saved_at     TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS draft_history (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			note_id      TEXT NOT NULL,
			from_version INTEGER NOT NULL,
			patch        TEXT NOT NULL,
			created_at   TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_draft_history_note ON draft_history(note_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate draft db: %w", err)
	}
	return nil
}

func (b *Buffer) Close() error { return b.db.Close() }

// SaveDraft upserts the draft for a note.
func (b *Buffer) SaveDraft(ctx context.Context, d Draft) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO drafts (note_id, title, content, base_version, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			base_version = excluded.base_version,
			saved_at = excluded.saved_at
	`, d.NoteID, d.Title, d.Content, d.BaseVersion, d.SavedAt.UTC())
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// LoadDraft returns the stored draft, or nil when there is none.
func (b *Buffer) LoadDraft(ctx context.Context, noteID string) (*Draft, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT note_id, title, content, base_version, saved_at
		FROM drafts WHERE note_id = ?
	`, noteID)

	var d Draft
	err := row.Scan(&d.NoteID, &d.Title, &d.Content, &d.BaseVersion, &d.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	return &d, nil
}

// ClearDraft removes the draft for a note, if any.
func (b *Buffer) ClearDraft(ctx context.Context, noteID string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM drafts WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// AppendHistory records a saved patch and evicts the oldest entries beyond
// the configured bound.
func (b *Buffer) AppendHistory(ctx context.Context, noteID string, e HistoryEntry) error {
	raw, err := json.Marshal(e.Ops)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO draft_history (note_id, from_version, patch, created_at)
		VALUES (?, ?, ?, ?)
	`, noteID, e.FromVersion, string(raw), e.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM draft_history
		WHERE note_id = ? AND id NOT IN (
			SELECT id FROM draft_history WHERE note_id = ?
			ORDER BY id DESC LIMIT ?
		)
	`, noteID, noteID, b.maxHistory); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return tx.Commit()
}

// History returns the stored entries for a note, newest first.
func (b *Buffer) History(ctx context.Context, noteID string) ([]HistoryEntry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT from_version, patch, created_at
		FROM draft_history WHERE note_id = ?
		ORDER BY id DESC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var raw string
		if err := rows.Scan(&e.FromVersion, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Ops); err != nil {
			return nil, fmt.Errorf("decode patch: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearHistory drops all history for a note.
func (b *Buffer) ClearHistory(ctx context.Context, noteID string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM draft_history WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
