// Package store is the data access layer for the entities the control
// plane core reads and writes: plans, VPS configuration presets, users,
// agents, VPSes, usage periods, overage budgets, and agent channels.
//
// The store owns a single *sql.DB pool over github.com/lib/pq. Every other
// component (forward proxy, gateway proxy, monitor) shares this pool
// read-mostly; the only hot-path write contention is the VpsUsagePeriod
// upsert, expressed as a single atomic increment statement.
package store

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type UserStatus string

const (
	UserPending UserStatus = "pending"
	UserActive  UserStatus = "active"
	UserFrozen  UserStatus = "frozen"
)

type VpsState string

const (
	VpsProvisioning VpsState = "provisioning"
	VpsRunning      VpsState = "running"
	VpsStopped      VpsState = "stopped"
	VpsDestroyed    VpsState = "destroyed"
)

// Plan is a named resource-policy tuple (spec.md §3).
type Plan struct {
	ID                        string
	Name                      string
	MaxAgents                 int
	MaxVpses                  int
	MaxBandwidthBytes         int64
	MaxStorageBytes           int64
	MaxCPUMillisecondsMonth   int64
	MaxMemoryMBSeconds        int64
	PricePerGBBandwidthCents  int64
	PricePerCPUHourCents      int64
	PricePerGBHourMemoryCents int64
	PricePerGBStorageCents    int64
}

// VpsConfig is a per-tier preset (spec.md §3).
type VpsConfig struct {
	ID            string
	ProviderTag   string
	Image         string
	CPUMillicores int
	MemoryMB      int
	DiskGB        int
	Location      string
}

// User is the owning identity (spec.md §3). Status gating happens outside
// the core; the core only reads it.
type User struct {
	ID     string
	Role   UserRole
	Status UserStatus
	PlanID *string
}

// Agent is owned by a user and holds at most one VPS (spec.md §3).
type Agent struct {
	ID           string
	UserID       string
	Name         string
	VpsID        *string
	GatewayToken string // 64 hex chars, CSPRNG-generated
	CreatedAt    time.Time
}

// Vps is an externally provisioned virtual machine instance (spec.md §3).
type Vps struct {
	ID             string
	UserID         string
	VpsConfigID    string
	ProviderTag    string
	RemoteID       string
	Address        string
	State          VpsState
	BandwidthTotal int64 // cumulative, as last reported by the provider
	CPUMsTotal     int64
	MemMBSecTotal  int64
	CreatedAt      time.Time
}

// VpsUsagePeriod accumulates usage for one VPS in one calendar month
// (spec.md §3). Keyed by (VpsID, PeriodStart). Upserted, never decremented.
type VpsUsagePeriod struct {
	VpsID               string
	PeriodStart         time.Time
	BandwidthBytes      int64
	CPUUsedMs           int64
	MemoryUsedMBSeconds int64
}

// OverageBudget is the cents a user has authorized to exceed plan caps in a
// period (spec.md §3). A missing row means 0.
type OverageBudget struct {
	UserID      string
	PeriodStart time.Time
	BudgetCents int64
}

// AggregateUsage is a transient derived view: per-user monthly sum across
// all of that user's VPSes (spec.md §3). It is never persisted.
type AggregateUsage struct {
	UserID              string
	PeriodStart         time.Time
	BandwidthBytes      int64
	CPUUsedMs           int64
	MemoryUsedMBSeconds int64
}

// AgentChannel is metadata about an external messaging integration attached
// to an agent (spec.md §3). The core only reads existence + credentials.
type AgentChannel struct {
	ID              string
	AgentID         string
	ChannelType     string
	CredentialsBlob []byte
}

// PeriodStart truncates t to the first day of its calendar month in UTC —
// the key dimension of every usage/budget row (spec.md's "Period").
func PeriodStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
