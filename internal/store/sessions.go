package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Session is a row in the identity layer's session table (spec.md §6
// "accounts/sessions/verification_tokens ... read-mostly for session
// lookup and otherwise opaque to the core"). The core never writes this
// table; it only reads it to cross-check a JWT's `sub` claim against a
// live session when strict session checking is enabled.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

// HasActiveSession reports whether userID owns at least one session row
// that has not yet expired (SPEC_FULL.md §3 "strict session checking").
func (s *Store) HasActiveSession(ctx context.Context, userID string) (bool, error) {
	const q = `SELECT 1 FROM sessions WHERE user_id = $1 AND expires_at > now() LIMIT 1`
	var exists int
	err := s.db.QueryRowContext(ctx, q, userID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: has active session: %w", err)
	}
	return true, nil
}
