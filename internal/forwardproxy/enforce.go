package forwardproxy

import (
	"context"
	"errors"
	"time"

	"github.com/slopbox/controlplane/internal/billing"
	"github.com/slopbox/controlplane/internal/cache"
	"github.com/slopbox/controlplane/internal/provider"
	"github.com/slopbox/controlplane/internal/store"
)

var errChainUnresolvable = errors.New("forwardproxy: could not resolve agent to vps/user/plan")

// identityChain is the resolved agent→vps→user→plan chain for a single
// connection (spec.md §4.1 "Enforcement policy").
type identityChain struct {
	Agent            *store.Agent
	VpsID            string
	ProviderTag      string
	UserID           string
	PlanID           *string
	MeteredResources provider.MeteredResources
}

// resolveChain consults the cache before the store. The cache only ever
// holds non-secret identity data; the gateway token itself is never
// cached and is verified directly against the store in authenticate
// (spec.md §4.1, expansion: "cache miss always re-queries the store; the
// enforcement decision itself is always made against live
// aggregate/budget rows, never a cached decision").
func (p *Proxy) resolveChain(ctx context.Context, agent *store.Agent) (identityChain, error) {
	if agent.VpsID == nil {
		return identityChain{}, errChainUnresolvable
	}

	if cached, ok := p.cache.GetIdentityChain(ctx, agent.ID); ok {
		mr, ok := p.registry.MeteredResourcesFor(cached.VpsProviderTag)
		if !ok {
			return identityChain{}, errChainUnresolvable
		}
		var planID *string
		if cached.UserPlanID != "" {
			planID = &cached.UserPlanID
		}
		return identityChain{
			Agent:            agent,
			VpsID:            cached.VpsID,
			ProviderTag:      cached.VpsProviderTag,
			UserID:           cached.AgentUserID,
			PlanID:           planID,
			MeteredResources: mr,
		}, nil
	}

	vps, err := p.store.GetVps(ctx, *agent.VpsID)
	if err != nil {
		return identityChain{}, errChainUnresolvable
	}

	user, err := p.store.GetUser(ctx, vps.UserID)
	if err != nil {
		return identityChain{}, errChainUnresolvable
	}

	mr, ok := p.registry.MeteredResourcesFor(vps.ProviderTag)
	if !ok {
		return identityChain{}, errChainUnresolvable
	}

	chain := cache.IdentityChain{
		AgentID:        agent.ID,
		AgentUserID:    user.ID,
		VpsID:          vps.ID,
		VpsProviderTag: vps.ProviderTag,
		UserStatus:     string(user.Status),
	}
	if user.PlanID != nil {
		chain.UserPlanID = *user.PlanID
	}
	p.cache.SetIdentityChain(ctx, chain)

	return identityChain{
		Agent:            agent,
		VpsID:            vps.ID,
		ProviderTag:      vps.ProviderTag,
		UserID:           user.ID,
		PlanID:           user.PlanID,
		MeteredResources: mr,
	}, nil
}

type decision string

const (
	decisionAllow        decision = "allow"
	decisionAllowOverage decision = "allow_overage"
	decisionReject       decision = "reject"
)

// enforce implements spec.md §4.1's metered-resources-aware policy. For
// bandwidth-only providers the monitor is authoritative; the proxy never
// blocks, it only counts. For elastic providers (bandwidth+cpu+memory)
// the proxy checks the live aggregate against plan caps and, if over,
// against the current-month overage budget before opening the upstream.
func (p *Proxy) enforce(ctx context.Context, chain identityChain) decision {
	if chain.MeteredResources.BandwidthOnly() {
		return decisionAllow
	}

	if chain.PlanID == nil {
		return decisionAllow
	}

	plan, err := p.store.GetPlan(ctx, *chain.PlanID)
	if err != nil {
		return decisionAllow
	}

	period := store.PeriodStart(time.Now())
	agg, err := p.store.AggregateUsageForUser(ctx, chain.UserID, period)
	if err != nil {
		return decisionAllow
	}

	over := billing.Over(agg, *plan)
	if !over.Any() {
		return decisionAllow
	}

	cost := billing.OverageCents(agg, *plan)
	budget, err := p.store.GetOverageBudget(ctx, chain.UserID, period)
	if err != nil {
		return decisionReject
	}

	if cost <= budget {
		return decisionAllowOverage
	}
	return decisionReject
}
