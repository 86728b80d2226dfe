package store

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
)

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	const q = `SELECT id, role, status, plan_id FROM users WHERE id = $1`
	row := s.db.QueryRowContext(ctx, q, id)
	var u User
	var planID sql.NullString
	if err := row.Scan(&u.ID, &u.Role, &u.Status, &planID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	if planID.Valid {
		u.PlanID = &planID.String
	}
	return &u, nil
}

// GetAgent loads an agent by id, regardless of owning user.
func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	const q = `SELECT id, user_id, name, vps_id, gateway_token, created_at FROM agents WHERE id = $1`
	return scanAgent(s.db.QueryRowContext(ctx, q, id))
}

// GetAgentByVpsID finds the agent that owns a VPS, used by the monitor to
// invalidate the forward proxy's cached identity chain when it stops a
// VPS for enforcement (spec.md §4.4; an agent holds at most one VPS,
// spec.md §3, so this is never ambiguous).
func (s *Store) GetAgentByVpsID(ctx context.Context, vpsID string) (*Agent, error) {
	const q = `SELECT id, user_id, name, vps_id, gateway_token, created_at FROM agents WHERE vps_id = $1`
	return scanAgent(s.db.QueryRowContext(ctx, q, vpsID))
}

// GetAgentByIDAndToken looks up an agent constrained by its gateway token,
// as used by the forward proxy's Basic-auth verification (spec.md §4.1).
// The query itself performs the equality predicate in SQL; callers that
// parse an untrusted token off the wire should still compare it with
// ConstantTimeEquals before trusting a match, to avoid timing side-channels
// at the parse layer.
func (s *Store) GetAgentByIDAndToken(ctx context.Context, id, token string) (*Agent, error) {
	const q = `SELECT id, user_id, name, vps_id, gateway_token, created_at FROM agents WHERE id = $1 AND gateway_token = $2`
	return scanAgent(s.db.QueryRowContext(ctx, q, id, token))
}

func scanAgent(row *sql.Row) (*Agent, error) {
	var a Agent
	var vpsID sql.NullString
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &vpsID, &a.GatewayToken, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get agent: %w", err)
	}
	if vpsID.Valid {
		a.VpsID = &vpsID.String
	}
	return &a, nil
}

// ConstantTimeEquals compares two gateway tokens in constant time, for use
// at the parse layer when checking a presented token against the one on
// the agent row loaded from the store (spec.md
// §4.1: "control-plane-side comparison ... should use constant-time
// equality").
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GetAgentChannels loads the messaging-integration metadata attached to an
// agent. The core consumes only existence + the credentials blob, never the
// channel's semantics (spec.md §3).
func (s *Store) GetAgentChannels(ctx context.Context, agentID string) ([]AgentChannel, error) {
	const q = `SELECT id, agent_id, channel_type, credentials_blob FROM agent_channels WHERE agent_id = $1`
	rows, err := s.db.QueryContext(ctx, q, agentID)
	if err != nil {
		return nil, fmt.Errorf("store: get agent channels: %w", err)
	}
	defer rows.Close()

	var out []AgentChannel
	for rows.Next() {
		var c AgentChannel
		if err := rows.Scan(&c.ID, &c.AgentID, &c.ChannelType, &c.CredentialsBlob); err != nil {
			return nil, fmt.Errorf("store: scan agent channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
