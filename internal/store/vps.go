package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetVps loads a VPS by id.
func (s *Store) GetVps(ctx context.Context, id string) (*Vps, error) {
	const q = `
		SELECT id, user_id, vps_config_id, provider_tag, remote_id, address, state,
		       bandwidth_total, cpu_ms_total, mem_mb_sec_total, created_at
		FROM vpses WHERE id = $1`
	return scanVps(s.db.QueryRowContext(ctx, q, id))
}

func scanVps(row *sql.Row) (*Vps, error) {
	var v Vps
	if err := row.Scan(&v.ID, &v.UserID, &v.VpsConfigID, &v.ProviderTag, &v.RemoteID, &v.Address, &v.State,
		&v.BandwidthTotal, &v.CPUMsTotal, &v.MemMBSecTotal, &v.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get vps: %w", err)
	}
	return &v, nil
}

// ListRunningVpses returns every VPS currently in the Running state, the
// monitor's per-tick working set (spec.md §4.4).
func (s *Store) ListRunningVpses(ctx context.Context) ([]Vps, error) {
	const q = `
		SELECT id, user_id, vps_config_id, provider_tag, remote_id, address, state,
		       bandwidth_total, cpu_ms_total, mem_mb_sec_total, created_at
		FROM vpses WHERE state = $1`
	rows, err := s.db.QueryContext(ctx, q, VpsRunning)
	if err != nil {
		return nil, fmt.Errorf("store: list running vpses: %w", err)
	}
	defer rows.Close()

	var out []Vps
	for rows.Next() {
		var v Vps
		if err := rows.Scan(&v.ID, &v.UserID, &v.VpsConfigID, &v.ProviderTag, &v.RemoteID, &v.Address, &v.State,
			&v.BandwidthTotal, &v.CPUMsTotal, &v.MemMBSecTotal, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan vps: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListRunningVpsesForUser returns a user's running VPSes, optionally
// restricted to a provider tag (used by the monitor when stopping only the
// offending provider class, spec.md §4.4).
func (s *Store) ListRunningVpsesForUser(ctx context.Context, userID, providerTag string) ([]Vps, error) {
	const q = `
		SELECT id, user_id, vps_config_id, provider_tag, remote_id, address, state,
		       bandwidth_total, cpu_ms_total, mem_mb_sec_total, created_at
		FROM vpses WHERE user_id = $1 AND state = $2 AND provider_tag = $3`
	rows, err := s.db.QueryContext(ctx, q, userID, VpsRunning, providerTag)
	if err != nil {
		return nil, fmt.Errorf("store: list running vpses for user: %w", err)
	}
	defer rows.Close()

	var out []Vps
	for rows.Next() {
		var v Vps
		if err := rows.Scan(&v.ID, &v.UserID, &v.VpsConfigID, &v.ProviderTag, &v.RemoteID, &v.Address, &v.State,
			&v.BandwidthTotal, &v.CPUMsTotal, &v.MemMBSecTotal, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan vps: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetVpsState updates a VPS's state optimistically, e.g. after a direct
// user action or a provider poll (spec.md §4.3 "State normalization").
func (s *Store) SetVpsState(ctx context.Context, id string, state VpsState) error {
	const q = `UPDATE vpses SET state = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id, state)
	if err != nil {
		return fmt.Errorf("store: set vps state: %w", err)
	}
	return nil
}

// SetVpsAddress updates a VPS's reachable address, e.g. after start_vps
// returns a new address for a provider that doesn't preserve IPs.
func (s *Store) SetVpsAddress(ctx context.Context, id, address string) error {
	const q = `UPDATE vpses SET address = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id, address)
	if err != nil {
		return fmt.Errorf("store: set vps address: %w", err)
	}
	return nil
}

// UpdateVpsCumulativeUsage overwrites a VPS's cumulative usage counters with
// the provider's latest reported totals (spec.md §4.4 "update vps row: set
// cumulative to metrics.totals").
func (s *Store) UpdateVpsCumulativeUsage(ctx context.Context, id string, bandwidthTotal, cpuMsTotal, memMBSecTotal int64) error {
	const q = `UPDATE vpses SET bandwidth_total = $2, cpu_ms_total = $3, mem_mb_sec_total = $4 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id, bandwidthTotal, cpuMsTotal, memMBSecTotal)
	if err != nil {
		return fmt.Errorf("store: update vps cumulative usage: %w", err)
	}
	return nil
}
