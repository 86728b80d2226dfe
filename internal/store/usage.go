package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UsageDelta is the non-negative increment applied to a VpsUsagePeriod row.
type UsageDelta struct {
	BandwidthBytes      int64
	CPUUsedMs           int64
	MemoryUsedMBSeconds int64
}

// AddUsage atomically increments the (vps, current-month) usage row,
// creating it on first write (spec.md §3 "Upserted; never decremented").
// This single statement is the "upsert-with-increment" the concurrency
// model requires (spec.md §5) so concurrent forward-proxy flushes and
// monitor ticks never lose an increment to a read-modify-write race.
func (s *Store) AddUsage(ctx context.Context, vpsID string, period time.Time, delta UsageDelta) error {
	const q = `
		INSERT INTO vps_usage_periods (vps_id, period_start, bandwidth_bytes, cpu_used_ms, memory_used_mb_seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (vps_id, period_start) DO UPDATE SET
			bandwidth_bytes = vps_usage_periods.bandwidth_bytes + EXCLUDED.bandwidth_bytes,
			cpu_used_ms = vps_usage_periods.cpu_used_ms + EXCLUDED.cpu_used_ms,
			memory_used_mb_seconds = vps_usage_periods.memory_used_mb_seconds + EXCLUDED.memory_used_mb_seconds`
	_, err := s.db.ExecContext(ctx, q, vpsID, PeriodStart(period),
		delta.BandwidthBytes, delta.CPUUsedMs, delta.MemoryUsedMBSeconds)
	if err != nil {
		return fmt.Errorf("store: add usage: %w", err)
	}
	return nil
}

// GetUsagePeriod loads a single VPS's usage row for a period, returning a
// zeroed row (not an error) when none has been written yet — usage rows
// "appear lazily on first write" (spec.md §3).
func (s *Store) GetUsagePeriod(ctx context.Context, vpsID string, period time.Time) (VpsUsagePeriod, error) {
	const q = `
		SELECT bandwidth_bytes, cpu_used_ms, memory_used_mb_seconds
		FROM vps_usage_periods WHERE vps_id = $1 AND period_start = $2`
	p := VpsUsagePeriod{VpsID: vpsID, PeriodStart: PeriodStart(period)}
	row := s.db.QueryRowContext(ctx, q, vpsID, p.PeriodStart)
	err := row.Scan(&p.BandwidthBytes, &p.CPUUsedMs, &p.MemoryUsedMBSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, nil
		}
		return p, fmt.Errorf("store: get usage period: %w", err)
	}
	return p, nil
}

// AggregateUsageForUser sums usage across all of a user's VPSes for a
// period (spec.md §3 "AggregateUsage": a transient derived view).
func (s *Store) AggregateUsageForUser(ctx context.Context, userID string, period time.Time) (AggregateUsage, error) {
	const q = `
		SELECT COALESCE(SUM(p.bandwidth_bytes), 0), COALESCE(SUM(p.cpu_used_ms), 0), COALESCE(SUM(p.memory_used_mb_seconds), 0)
		FROM vps_usage_periods p
		JOIN vpses v ON v.id = p.vps_id
		WHERE v.user_id = $1 AND p.period_start = $2`
	periodStart := PeriodStart(period)
	agg := AggregateUsage{UserID: userID, PeriodStart: periodStart}
	row := s.db.QueryRowContext(ctx, q, userID, periodStart)
	if err := row.Scan(&agg.BandwidthBytes, &agg.CPUUsedMs, &agg.MemoryUsedMBSeconds); err != nil {
		return agg, fmt.Errorf("store: aggregate usage for user: %w", err)
	}
	return agg, nil
}
