package provider

import (
	"fmt"
	"net/http"
	"time"

	"github.com/slopbox/controlplane/internal/cbreaker"
	"github.com/slopbox/controlplane/internal/config"
)

// Registry is the construction-time keyed container the forward proxy and
// monitor consult by provider tag (spec.md §4.3 "Registry"). It is
// immutable after boot; lookups are lock-free (spec.md §5).
type Registry struct {
	providers map[string]Provider
}

// New builds every provider configured in the environment. Providers
// missing credentials are omitted. The registry must be non-empty to boot
// (spec.md §4.3).
func New(cfg config.ProvidersConfig) (*Registry, error) {
	providers := make(map[string]Provider)

	httpClient := &http.Client{Timeout: 30 * time.Second}

	if cfg.Machine.Enabled && cfg.Machine.APIBase != "" && cfg.Machine.APIKey != "" {
		breaker := cbreaker.New(cbreaker.Config{
			Name:        "provider-machine",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
		})
		providers[(&MachineProvider{}).Name()] = NewMachineProvider(httpClient, breaker, cfg.Machine.APIBase, cfg.Machine.APIKey)
	}

	if cfg.ClassicalVM.Enabled && cfg.ClassicalVM.APIBase != "" && cfg.ClassicalVM.APIKey != "" {
		breaker := cbreaker.New(cbreaker.Config{
			Name:        "provider-classicalvm",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
		})
		providers[(&ClassicalVMProvider{}).Name()] = NewClassicalVMProvider(httpClient, breaker, cfg.ClassicalVM.APIBase, cfg.ClassicalVM.APIKey)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("provider: registry is empty — no provider credentials configured")
	}

	return &Registry{providers: providers}, nil
}

// Get returns the provider for a tag, or false if unconfigured.
func (r *Registry) Get(tag string) (Provider, bool) {
	p, ok := r.providers[tag]
	return p, ok
}

// MeteredResourcesFor looks up a provider's metered-resources policy by its
// opaque tag, for components (forward proxy, monitor) that only have the
// tag string from the database (spec.md §4.3 "metered_resources_for").
func (r *Registry) MeteredResourcesFor(tag string) (MeteredResources, bool) {
	p, ok := r.providers[tag]
	if !ok {
		return MeteredResources{}, false
	}
	return p.MeteredResources(), true
}
