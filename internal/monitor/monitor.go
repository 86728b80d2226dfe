// Package monitor runs the fixed-interval poll loop that collects
// per-VPS provider metrics, accumulates usage, and stops VPSes whose
// owning user is over both their plan cap and their overage budget
// (spec.md §4.4).
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/slopbox/controlplane/internal/billing"
	"github.com/slopbox/controlplane/internal/cache"
	"github.com/slopbox/controlplane/internal/events"
	"github.com/slopbox/controlplane/internal/metrics"
	"github.com/slopbox/controlplane/internal/notify"
	"github.com/slopbox/controlplane/internal/provider"
	"github.com/slopbox/controlplane/internal/store"
)

// Monitor owns the poll loop and its dependencies.
type Monitor struct {
	store     *store.Store
	registry  *provider.Registry
	cache     *cache.Cache
	metrics   *metrics.Metrics
	notifier  notify.Dispatcher
	events    events.Emitter
	collector MetricsCollector

	interval       time.Duration
	collectTimeout time.Duration
}

func New(
	st *store.Store,
	reg *provider.Registry,
	c *cache.Cache,
	m *metrics.Metrics,
	notifier notify.Dispatcher,
	emitter events.Emitter,
	collector MetricsCollector,
	interval, collectTimeout time.Duration,
) *Monitor {
	return &Monitor{
		store:          st,
		registry:       reg,
		cache:          c,
		metrics:        m,
		notifier:       notifier,
		events:         emitter,
		collector:      collector,
		interval:       interval,
		collectTimeout: collectTimeout,
	}
}

// Run drives the tick loop until ctx is cancelled. An in-flight tick
// completes its current per-VPS update or aborts — at most the current
// VPS's increment is lost (spec.md §4.4 "Cancellation").
func (mon *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(mon.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mon.tick(ctx)
		}
	}
}

func (mon *Monitor) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if mon.metrics != nil {
			mon.metrics.MonitorTickDuration.Observe(time.Since(start).Seconds())
		}
	}()

	vpses, err := mon.store.ListRunningVpses(ctx)
	if err != nil {
		slog.Error("monitor: list running vpses", "error", err)
		return
	}

	// (userID, providerTag) pairs to run enforcement on — every configured
	// provider, bandwidth-only ones included: the forward proxy never
	// blocks bandwidth-only providers, so this loop is their only gate.
	pending := map[string]map[string]bool{}

	for _, v := range vpses {
		select {
		case <-ctx.Done():
			return
		default:
		}

		mon.collectOne(ctx, v)

		if _, ok := mon.registry.MeteredResourcesFor(v.ProviderTag); !ok {
			continue
		}
		if pending[v.UserID] == nil {
			pending[v.UserID] = map[string]bool{}
		}
		pending[v.UserID][v.ProviderTag] = true
	}

	for userID, tags := range pending {
		for tag := range tags {
			mon.enforceUser(ctx, userID, tag)
		}
	}
}

// collectOne polls one VPS's provider metrics, clamps the delta to zero
// (counter resets never contribute a negative increment), and persists
// both the period delta and the new cumulative totals (spec.md §4.4
// "Loop").
func (mon *Monitor) collectOne(ctx context.Context, v store.Vps) {
	cctx, cancel := context.WithTimeout(ctx, mon.collectTimeout)
	defer cancel()

	totals, err := mon.collector.Collect(cctx, v)
	if err != nil {
		reason := "provider_error"
		if cctx.Err() == context.DeadlineExceeded {
			reason = "timeout"
		}
		if mon.metrics != nil {
			mon.metrics.MonitorCollectErrors.WithLabelValues(reason).Inc()
		}
		slog.Warn("monitor: collect failed", "vps_id", v.ID, "error", err)
		return
	}

	delta := store.UsageDelta{
		BandwidthBytes:      clampZero(totals.BandwidthBytesTotal - v.BandwidthTotal),
		CPUUsedMs:           clampZero(totals.CPUMsTotal - v.CPUMsTotal),
		MemoryUsedMBSeconds: clampZero(totals.MemoryMBSecondsTotal - v.MemMBSecTotal),
	}

	period := store.PeriodStart(time.Now())
	if err := mon.store.AddUsage(ctx, v.ID, period, delta); err != nil {
		slog.Error("monitor: add usage", "vps_id", v.ID, "error", err)
		return
	}
	if err := mon.store.UpdateVpsCumulativeUsage(ctx, v.ID, totals.BandwidthBytesTotal, totals.CPUMsTotal, totals.MemoryMBSecondsTotal); err != nil {
		slog.Error("monitor: update cumulative usage", "vps_id", v.ID, "error", err)
	}
}

func clampZero(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// enforceUser checks one user's aggregate usage against their plan cap
// and overage budget, stopping every running VPS on the offending
// provider class when both are exceeded (spec.md §4.4 "Loop").
func (mon *Monitor) enforceUser(ctx context.Context, userID, providerTag string) {
	user, err := mon.store.GetUser(ctx, userID)
	if err != nil || user.PlanID == nil {
		return
	}
	plan, err := mon.store.GetPlan(ctx, *user.PlanID)
	if err != nil {
		return
	}

	period := store.PeriodStart(time.Now())
	agg, err := mon.store.AggregateUsageForUser(ctx, userID, period)
	if err != nil {
		slog.Error("monitor: aggregate usage", "user_id", userID, "error", err)
		return
	}

	over := billing.Over(agg, *plan)
	if !over.Any() {
		return
	}

	cost := billing.OverageCents(agg, *plan)
	budget, err := mon.store.GetOverageBudget(ctx, userID, period)
	if err != nil {
		slog.Error("monitor: get overage budget", "user_id", userID, "error", err)
		return
	}
	if cost <= budget {
		return
	}

	mon.stopOffendingVpses(ctx, userID, providerTag, agg, plan, over, cost, budget)
}

func (mon *Monitor) stopOffendingVpses(ctx context.Context, userID, providerTag string, agg store.AggregateUsage, plan *store.Plan, over billing.OverResource, cost, budget int64) {
	vpses, err := mon.store.ListRunningVpsesForUser(ctx, userID, providerTag)
	if err != nil {
		slog.Error("monitor: list running vpses for user", "user_id", userID, "error", err)
		return
	}

	p, ok := mon.registry.Get(providerTag)
	if !ok {
		return
	}

	for _, v := range vpses {
		if err := p.StopVps(ctx, v.RemoteID); err != nil {
			slog.Error("monitor: stop vps", "vps_id", v.ID, "error", err)
			continue
		}
		if err := mon.store.SetVpsState(ctx, v.ID, store.VpsStopped); err != nil {
			slog.Error("monitor: set vps state", "vps_id", v.ID, "error", err)
		}

		if agent, err := mon.store.GetAgentByVpsID(ctx, v.ID); err == nil {
			mon.cache.InvalidateIdentityChain(ctx, agent.ID)
		}

		resource := offendingResource(over)
		if mon.metrics != nil {
			mon.metrics.MonitorVpsesStopped.WithLabelValues(resource).Inc()
		}

		mon.recordEnforcement(ctx, v, resource, agg, plan, cost, budget)
	}
}

func (mon *Monitor) recordEnforcement(ctx context.Context, v store.Vps, resource string, agg store.AggregateUsage, plan *store.Plan, cost, budget int64) {
	n := notify.EnforcementNotification{
		UserID:           v.UserID,
		VpsID:            v.ID,
		Resource:         resource,
		Aggregate:        aggregateValue(agg, resource),
		Cap:              capValue(plan, resource),
		OverageCostCents: cost,
		BudgetCents:      budget,
		Timestamp:        time.Now(),
	}
	if mon.notifier != nil {
		if err := mon.notifier.NotifyEnforcement(ctx, n); err != nil {
			slog.Error("monitor: notify enforcement", "vps_id", v.ID, "error", err)
		}
	}
	if mon.events != nil {
		mon.events.Emit("vps.enforced.stopped", v.ID, v.UserID, map[string]interface{}{
			"resource":           resource,
			"overage_cost_cents": cost,
			"budget_cents":       budget,
		})
	}
}

// offendingResource picks one axis to attribute the stop to when more
// than one is over cap, preferring the order bandwidth, cpu, memory.
func offendingResource(over billing.OverResource) string {
	switch {
	case over.Bandwidth:
		return "bandwidth"
	case over.CPU:
		return "cpu"
	default:
		return "memory"
	}
}

func aggregateValue(agg store.AggregateUsage, resource string) int64 {
	switch resource {
	case "bandwidth":
		return agg.BandwidthBytes
	case "cpu":
		return agg.CPUUsedMs
	default:
		return agg.MemoryUsedMBSeconds
	}
}

func capValue(plan *store.Plan, resource string) int64 {
	switch resource {
	case "bandwidth":
		return plan.MaxBandwidthBytes
	case "cpu":
		return plan.MaxCPUMillisecondsMonth
	default:
		return plan.MaxMemoryMBSeconds
	}
}
