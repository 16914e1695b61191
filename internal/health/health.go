// Package health determines whether the system as a whole is serviceable.
//
// Each subsystem gets one Probe that knows how to interpret that subsystem's
// specific signal (a queue backlog means degraded, a refused connection
// means unhealthy, a stale heartbeat means degraded, and so on). The
// Aggregator fans out every registered probe concurrently under a shared
// deadline and rolls the results into one report.
//
// Probe results are ephemeral: they are recomputed on every aggregation
// cycle and never persisted as authoritative state.
package health

import (
	"context"
	"time"
)

// Status is the tri-state outcome of a probe or an aggregate report.
type Status string

const (
	// StatusHealthy indicates the subsystem is fully serviceable.
	StatusHealthy Status = "healthy"

	// StatusDegraded indicates the subsystem works but needs attention
	// (backlog building, stale heartbeat, collaborator limping).
	StatusDegraded Status = "degraded"

	// StatusUnhealthy indicates the subsystem is unserviceable.
	StatusUnhealthy Status = "unhealthy"
)

// severity orders statuses for the rollup. Higher is worse.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Rollup combines member statuses pessimistically: any unhealthy member
// makes the whole unhealthy, else any degraded member makes it degraded,
// else healthy. A single hard failure (say, the store unreachable) must
// never be masked by otherwise-healthy peripheral checks, which is why this
// is a precedence rule and not an average.
func Rollup(statuses []Status) Status {
	overall := StatusHealthy
	for _, s := range statuses {
		if s.severity() > overall.severity() {
			overall = s
		}
	}
	return overall
}

// ProbeResult is one subsystem's health snapshot.
type ProbeResult struct {
	Component string         `json:"component"`
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	ElapsedMs float64        `json:"elapsed_ms"`
	Details   map[string]any `json:"details,omitempty"`
}

// Probe checks a single subsystem. Implementations must never block past
// the deadline on the context they receive: on timeout they report
// unhealthy rather than hang the aggregator.
type Probe interface {
	// Name identifies the subsystem in the aggregate report.
	Name() string

	// Check measures the subsystem and classifies the outcome.
	Check(ctx context.Context) ProbeResult
}

// Report is the aggregate produced by one aggregation cycle. It is a pure
// function of the member results; nothing about it is stateful.
type Report struct {
	Overall     Status                 `json:"status"`
	TimestampMs int64                  `json:"timestamp_ms"`
	Checks      map[string]ProbeResult `json:"checks"`
}

// elapsedMs measures time since start in fractional milliseconds.
func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
