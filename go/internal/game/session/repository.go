package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quizchest/quizchest/go/internal/models"
	"github.com/quizchest/quizchest/go/internal/sqlutil"
)

// ErrSessionNotFound means no saved session exists for a code.
var ErrSessionNotFound = errors.New("saved session not found")

// Repository persists session blobs so a host can resume a game across
// reloads. Persistence is last-write-wins on the session row; the host's
// in-memory record stays authoritative regardless of save outcomes.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a session repository on an open database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the session tables when they do not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			code       text PRIMARY KEY,
			host_ref   text NOT NULL,
			blob       jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS session_saves (
			id              uuid PRIMARY KEY,
			session_code    text NOT NULL,
			phase           text NOT NULL,
			question_cursor int NOT NULL,
			saved_at        timestamptz NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure session schema: %w", err)
	}
	return nil
}

// SaveSnapshot upserts the session blob and appends a save journal row
// in one transaction. It takes a snapshot, never the live record, so it
// is safe to call off the host goroutine.
func (r *Repository) SaveSnapshot(ctx context.Context, s *models.Session, opts SavedOptions) error {
	blob, err := json.Marshal(SavedSession{Session: s, Options: opts})
	if err != nil {
		return fmt.Errorf("failed to marshal session blob: %w", err)
	}

	return sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (code, host_ref, blob, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (code) DO UPDATE
			SET host_ref = EXCLUDED.host_ref, blob = EXCLUDED.blob, updated_at = now()
		`, s.Code, s.HostRef, blob); err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_saves (id, session_code, phase, question_cursor, saved_at)
			VALUES ($1, $2, $3, $4, now())
		`, uuid.New(), s.Code, string(s.Phase), s.QuestionCursor); err != nil {
			return fmt.Errorf("failed to append save journal: %w", err)
		}
		return nil
	})
}

// LoadSession restores the store for a session code. Transient flags in
// the blob are cleared by Restore.
func (r *Repository) LoadSession(ctx context.Context, code string) (*Store, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT blob FROM sessions WHERE code = $1
	`, code).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return Restore(blob)
}

// DeleteSession drops the persisted record when the host ends a game.
func (r *Repository) DeleteSession(ctx context.Context, code string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE code = $1`, code); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
