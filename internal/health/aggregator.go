package health

import (
	"context"
	"time"
)

// Default deadlines for an aggregation cycle.
const (
	DefaultOverallTimeout = 10 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
)

// Aggregator fans out every registered probe concurrently and rolls the
// results into one Report. It holds no state between cycles and runs no
// background work of its own: callers invoke Check on demand or from their
// own timer, which keeps it composable with either a scheduler or a request
// handler.
type Aggregator struct {
	probes         []Probe
	overallTimeout time.Duration
	probeTimeout   time.Duration
}

// NewAggregator creates an aggregator over the given probes. Each probe gets
// its own deadline of probeTimeout, and the whole cycle is bounded by
// overallTimeout; the per-probe deadline is clamped to the overall one.
// Non-positive timeouts fall back to the defaults.
func NewAggregator(probes []Probe, overallTimeout, probeTimeout time.Duration) *Aggregator {
	if overallTimeout <= 0 {
		overallTimeout = DefaultOverallTimeout
	}
	if probeTimeout <= 0 || probeTimeout > overallTimeout {
		probeTimeout = overallTimeout
	}
	return &Aggregator{
		probes:         probes,
		overallTimeout: overallTimeout,
		probeTimeout:   probeTimeout,
	}
}

// Check runs one aggregation cycle: fan out, collect, roll up.
//
// Every completed result is collected even under partial failure. A probe
// that neither completes nor times out cleanly by the overall deadline gets
// a synthesized unhealthy result ("probe did not respond") so a single stuck
// probe can never wedge the report. Partial failure is recoverable and
// reported; it is never fatal to the caller.
func (a *Aggregator) Check(ctx context.Context) *Report {
	overallCtx, cancel := context.WithTimeout(ctx, a.overallTimeout)
	defer cancel()

	// Buffered so a probe finishing after the deadline does not leak its
	// goroutine on send.
	resultCh := make(chan ProbeResult, len(a.probes))

	for _, probe := range a.probes {
		go func(p Probe) {
			probeCtx, probeCancel := context.WithTimeout(overallCtx, a.probeTimeout)
			defer probeCancel()
			resultCh <- p.Check(probeCtx)
		}(probe)
	}

	checks := make(map[string]ProbeResult, len(a.probes))

collect:
	for range a.probes {
		select {
		case result := <-resultCh:
			checks[result.Component] = result
		case <-overallCtx.Done():
			break collect
		}
	}

	// Synthesize results for probes that never answered.
	for _, probe := range a.probes {
		if _, ok := checks[probe.Name()]; ok {
			continue
		}
		checks[probe.Name()] = ProbeResult{
			Component: probe.Name(),
			Status:    StatusUnhealthy,
			Message:   "probe did not respond",
			ElapsedMs: float64(a.overallTimeout.Milliseconds()),
		}
	}

	statuses := make([]Status, 0, len(checks))
	for _, result := range checks {
		statuses = append(statuses, result.Status)
	}

	return &Report{
		Overall:     Rollup(statuses),
		TimestampMs: time.Now().UnixMilli(),
		Checks:      checks,
	}
}
