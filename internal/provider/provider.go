// Package provider normalizes the VPS lifecycle across external cloud
// infrastructure providers with differing resource models, bootstrap
// mechanisms, and state vocabularies (spec.md §4.3).
package provider

import "context"

// State is the normalized VPS lifecycle state every provider maps its
// native vocabulary onto (spec.md §4.3 "State normalization").
type State string

const (
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateStopped   State = "stopped"
	StateDestroyed State = "destroyed"
	StateUnknown   State = "unknown"
)

// InjectedFile is materialized at GuestPath on the VPS at bootstrap time
// (spec.md §4.3 "VpsSpec").
type InjectedFile struct {
	GuestPath  string
	RawContent []byte
}

// VpsSpec describes the VPS to create, polymorphic over every provider
// (spec.md §4.3).
type VpsSpec struct {
	Name          string
	Image         string
	CPUMillicores int
	MemoryMB      int
	DiskGB        int
	Env           map[string]string
	Files         []InjectedFile
}

// VpsInfo is the normalized result of create_vps and get_vps.
type VpsInfo struct {
	RemoteID string
	State    State
	Address  string // empty if not yet assigned
}

// MeteredResources declares which resource axes a provider's metrics API
// lets the forward proxy police at request time; the complement is
// enforced by the monitor (spec.md §4.3 "Metered-resources policy").
type MeteredResources struct {
	Bandwidth bool
	CPU       bool
	Memory    bool
}

// BandwidthOnly reports whether this provider meters bandwidth alone — the
// forward proxy's enforcement policy short-circuits for these providers
// because the monitor is authoritative for them (spec.md §4.1).
func (m MeteredResources) BandwidthOnly() bool {
	return m.Bandwidth && !m.CPU && !m.Memory
}

// Provider is the capability set every concrete provider implements
// (spec.md §4.3 "Shared operations"). Variants are closed and known at
// boot; there is no dynamic plugin loading.
type Provider interface {
	Name() string
	MeteredResources() MeteredResources

	CreateVps(ctx context.Context, spec VpsSpec) (VpsInfo, error)
	StartVps(ctx context.Context, remoteID string) error
	StopVps(ctx context.Context, remoteID string) error
	// DestroyVps must treat upstream "not found" as success (spec.md §4.3,
	// §8 invariant 5: idempotent destroy).
	DestroyVps(ctx context.Context, remoteID string) error
	GetVps(ctx context.Context, remoteID string) (VpsInfo, error)
}

// ErrNotFound is returned by a provider's GetVps/StartVps/StopVps when the
// upstream reports the resource no longer exists. DestroyVps translates
// this into a nil (success) return instead of propagating it.
type ErrNotFound struct {
	RemoteID string
}

func (e *ErrNotFound) Error() string {
	return "provider: remote resource not found: " + e.RemoteID
}
