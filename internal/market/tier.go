package market

import "time"

// Tier describes one rung of the tiered circuit breaker: how far price may
// deviate from the reference rate before a soft-halt trips, and how long
// that halt holds before auto-resuming. Tiers are evaluated independently,
// tightest first; breaching the widest tier escalates to a full session
// close instead of auto-resuming (HaltDuration is ignored in that case).
type Tier struct {
	Name         string
	DeviationBps int64
	HaltDuration time.Duration
}

// DefaultTiers returns the three-level escalation ladder spec.md §4.5
// defaults to: 3%/5%/10% deviation, soft halts of 30s then 5 minutes, and a
// full session close on the outermost breach. level2 also sizes the
// admission price band (see Controller).
func DefaultTiers() []Tier {
	return BuildTiers(300, 500, 1000, 30*time.Second, 5*time.Minute)
}

// BuildTiers constructs the three-tier escalation ladder from per-symbol
// configured deviations and halt durations. level3 always closes the
// session rather than auto-resuming, so its HaltDuration is unused.
func BuildTiers(level1Bps, level2Bps, level3Bps int64, t1, t2 time.Duration) []Tier {
	return []Tier{
		{Name: "level1", DeviationBps: level1Bps, HaltDuration: t1},
		{Name: "level2", DeviationBps: level2Bps, HaltDuration: t2},
		{Name: "level3", DeviationBps: level3Bps},
	}
}
