// Package billing computes plan-cap overage cost, shared by the forward
// proxy's per-request enforcement gate and the monitor's per-tick
// enforcement pass (spec.md §4.1, §4.4) so the two components never
// diverge on how overage is priced.
package billing

import "github.com/slopbox/controlplane/internal/store"

const (
	bytesPerGB = 1_000_000_000

	// cpuUnitsPerHour matches spec.md §8 boundary scenario 6 literally:
	// price_per_cpu_hour=3600 cents is stated to mean "1 cent per ms of
	// overage," i.e. the cap's accounting unit is priced as if 3600 of
	// them make an hour, not 3,600,000. Preserved as given rather than
	// corrected to true ms/hour.
	cpuUnitsPerHour = 3600

	mbSecondsPerGBHour = 1024 * 3600
)

// OverageCents returns the total overage cost, in cents, for a user's
// current aggregate usage against their plan caps. Resources within cap
// contribute zero (spec.md §4.4: "overage_cost = Σ max(0, aggregate.X −
// cap.X) · price.X").
func OverageCents(agg store.AggregateUsage, plan store.Plan) int64 {
	var total int64
	total += overTermCents(agg.BandwidthBytes, plan.MaxBandwidthBytes, bytesPerGB, plan.PricePerGBBandwidthCents)
	total += overTermCents(agg.CPUUsedMs, plan.MaxCPUMillisecondsMonth, cpuUnitsPerHour, plan.PricePerCPUHourCents)
	total += overTermCents(agg.MemoryUsedMBSeconds, plan.MaxMemoryMBSeconds, mbSecondsPerGBHour, plan.PricePerGBHourMemoryCents)
	return total
}

// overTermCents computes one resource axis's contribution: the excess
// over cap, times the per-unit price, divided by the units-per-billing-
// unit conversion. Multiplying before dividing keeps sub-billing-unit
// overage from being truncated away entirely (spec.md §8 boundary
// scenario 6 prices a 50ms overage at exactly 50 cents). The division
// rounds up: any nonzero overage against a nonzero price must cost at
// least one cent, never zero, or a one-byte/one-ms overage would read as
// free and pass a zero-budget check it should fail (spec.md §8 boundary
// scenario 7).
func overTermCents(used, capacity, unitsPerBillingUnit, priceCentsPerUnit int64) int64 {
	over := used - capacity
	if over <= 0 {
		return 0
	}
	numerator := over * priceCentsPerUnit
	if numerator <= 0 {
		return 0
	}
	return (numerator + unitsPerBillingUnit - 1) / unitsPerBillingUnit
}

// OverResource reports which resource axes (if any) exceed the plan cap,
// used by the monitor to decide which provider class of VPSes to stop.
type OverResource struct {
	Bandwidth bool
	CPU       bool
	Memory    bool
}

func (o OverResource) Any() bool { return o.Bandwidth || o.CPU || o.Memory }

func Over(agg store.AggregateUsage, plan store.Plan) OverResource {
	return OverResource{
		Bandwidth: agg.BandwidthBytes > plan.MaxBandwidthBytes,
		CPU:       agg.CPUUsedMs > plan.MaxCPUMillisecondsMonth,
		Memory:    agg.MemoryUsedMBSeconds > plan.MaxMemoryMBSeconds,
	}
}
