package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetPlan loads a plan by id. Plans are administratively managed and
// immutable once referenced (spec.md §3), so no update path is offered here.
func (s *Store) GetPlan(ctx context.Context, id string) (*Plan, error) {
	const q = `
		SELECT id, name, max_agents, max_vpses,
		       max_bandwidth_bytes, max_storage_bytes, max_cpu_ms, max_memory_mb_seconds,
		       per_gb_bandwidth_cents, per_cpu_hour_cents, per_gb_hour_memory_cents, per_gb_storage_cents
		FROM plans WHERE id = $1`
	row := s.db.QueryRowContext(ctx, q, id)
	var p Plan
	err := row.Scan(&p.ID, &p.Name, &p.MaxAgents, &p.MaxVpses,
		&p.MaxBandwidthBytes, &p.MaxStorageBytes, &p.MaxCPUMillisecondsMonth, &p.MaxMemoryMBSeconds,
		&p.PricePerGBBandwidthCents, &p.PricePerCPUHourCents, &p.PricePerGBHourMemoryCents, &p.PricePerGBStorageCents)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get plan: %w", err)
	}
	return &p, nil
}

// GetVpsConfig loads a VPS configuration preset by id.
func (s *Store) GetVpsConfig(ctx context.Context, id string) (*VpsConfig, error) {
	const q = `
		SELECT id, provider_tag, image, cpu_millicores, memory_mb, disk_gb, COALESCE(location, '')
		FROM vps_configs WHERE id = $1`
	row := s.db.QueryRowContext(ctx, q, id)
	var c VpsConfig
	err := row.Scan(&c.ID, &c.ProviderTag, &c.Image, &c.CPUMillicores, &c.MemoryMB, &c.DiskGB, &c.Location)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get vps config: %w", err)
	}
	return &c, nil
}
