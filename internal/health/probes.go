package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/warrenlabs/warren/pkg/broker"
)

// Pinger is the store-connectivity surface the redis probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisProbe checks the shared store itself. The store is the system's only
// synchronization point, so this probe going unhealthy dominates every
// report.
type RedisProbe struct {
	store Pinger
	addr  string
}

// NewRedisProbe creates a probe over an already-connected store client.
// addr is reported in the result details only.
func NewRedisProbe(store Pinger, addr string) *RedisProbe {
	return &RedisProbe{store: store, addr: addr}
}

func (p *RedisProbe) Name() string { return "redis" }

func (p *RedisProbe) Check(ctx context.Context) ProbeResult {
	start := time.Now()

	if err := p.store.Ping(ctx); err != nil {
		return ProbeResult{
			Component: p.Name(),
			Status:    StatusUnhealthy,
			Message:   fmt.Sprintf("cannot reach redis: %v", err),
			ElapsedMs: elapsedMs(start),
			Details:   map[string]any{"addr": p.addr},
		}
	}

	return ProbeResult{
		Component: p.Name(),
		Status:    StatusHealthy,
		Message:   "redis is responding",
		ElapsedMs: elapsedMs(start),
		Details:   map[string]any{"addr": p.addr},
	}
}

// QueueProbe checks the broker's work queue depth. A reachable queue with a
// deep backlog means consumers are not keeping up (or a consumer died
// mid-task and its work is stuck in_progress): degraded, not unhealthy,
// because submissions still succeed.
type QueueProbe struct {
	broker      *broker.Broker
	warnBacklog int64
}

// NewQueueProbe creates a backlog probe. Depths at or above warnBacklog
// report degraded.
func NewQueueProbe(b *broker.Broker, warnBacklog int64) *QueueProbe {
	return &QueueProbe{broker: b, warnBacklog: warnBacklog}
}

func (p *QueueProbe) Name() string { return "queue" }

func (p *QueueProbe) Check(ctx context.Context) ProbeResult {
	start := time.Now()

	depth, err := p.broker.QueueDepth(ctx)
	if err != nil {
		return ProbeResult{
			Component: p.Name(),
			Status:    StatusUnhealthy,
			Message:   fmt.Sprintf("cannot read queue depth: %v", err),
			ElapsedMs: elapsedMs(start),
		}
	}

	details := map[string]any{"depth": depth, "warn_backlog": p.warnBacklog}

	if depth >= p.warnBacklog {
		return ProbeResult{
			Component: p.Name(),
			Status:    StatusDegraded,
			Message:   fmt.Sprintf("backlog building: %d pending tasks (threshold %d)", depth, p.warnBacklog),
			ElapsedMs: elapsedMs(start),
			Details:   details,
		}
	}

	return ProbeResult{
		Component: p.Name(),
		Status:    StatusHealthy,
		Message:   fmt.Sprintf("queue accessible, %d pending tasks", depth),
		ElapsedMs: elapsedMs(start),
		Details:   details,
	}
}

// HeartbeatProbe checks a consumer's liveness marker. The consumer runs in
// an isolated network segment and exposes nothing inbound, so its heartbeat
// in the store is the only signal it is alive.
type HeartbeatProbe struct {
	broker     *broker.Broker
	consumerID string
	maxAge     time.Duration
}

// NewHeartbeatProbe creates a liveness probe for one consumer. Markers older
// than maxAge report degraded.
func NewHeartbeatProbe(b *broker.Broker, consumerID string, maxAge time.Duration) *HeartbeatProbe {
	return &HeartbeatProbe{broker: b, consumerID: consumerID, maxAge: maxAge}
}

func (p *HeartbeatProbe) Name() string { return "consumer" }

func (p *HeartbeatProbe) Check(ctx context.Context) ProbeResult {
	start := time.Now()

	last, err := p.broker.LastHeartbeat(ctx, p.consumerID)
	if err != nil {
		if broker.IsNotFound(err) {
			// No marker yet: the consumer may simply not have started.
			// Degraded with an explanation, not a hard failure.
			return ProbeResult{
				Component: p.Name(),
				Status:    StatusDegraded,
				Message:   fmt.Sprintf("no heartbeat recorded for consumer %q", p.consumerID),
				ElapsedMs: elapsedMs(start),
				Details:   map[string]any{"consumer_id": p.consumerID},
			}
		}
		return ProbeResult{
			Component: p.Name(),
			Status:    StatusUnhealthy,
			Message:   fmt.Sprintf("cannot check consumer liveness: %v", err),
			ElapsedMs: elapsedMs(start),
		}
	}

	age := time.Since(last)
	details := map[string]any{
		"consumer_id":        p.consumerID,
		"heartbeat_age_secs": age.Seconds(),
		"heartbeat_max_secs": p.maxAge.Seconds(),
	}

	if age > p.maxAge {
		return ProbeResult{
			Component: p.Name(),
			Status:    StatusDegraded,
			Message:   fmt.Sprintf("consumer heartbeat is stale (%.1fs old, max %.0fs)", age.Seconds(), p.maxAge.Seconds()),
			ElapsedMs: elapsedMs(start),
			Details:   details,
		}
	}

	return ProbeResult{
		Component: p.Name(),
		Status:    StatusHealthy,
		Message:   fmt.Sprintf("consumer %q is alive", p.consumerID),
		ElapsedMs: elapsedMs(start),
		Details:   details,
	}
}

// HTTPProbe checks a collaborator that exposes an HTTP health endpoint
// (the ingress gateway, the model-routing proxy). A connection failure is
// unhealthy; an error status code means the collaborator is up but limping.
type HTTPProbe struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPProbe creates a probe that GETs url. The client's own timeout is
// left alone; the per-check deadline comes from the context.
func NewHTTPProbe(name, url string, client *http.Client) *HTTPProbe {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProbe{name: name, url: url, client: client}
}

func (p *HTTPProbe) Name() string { return p.name }

func (p *HTTPProbe) Check(ctx context.Context) ProbeResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return ProbeResult{
			Component: p.Name(),
			Status:    StatusUnhealthy,
			Message:   fmt.Sprintf("invalid probe target: %v", err),
			ElapsedMs: elapsedMs(start),
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		msg := fmt.Sprintf("cannot connect to %s: %v", p.name, err)
		if ctx.Err() != nil {
			msg = fmt.Sprintf("%s timed out", p.name)
		}
		return ProbeResult{
			Component: p.Name(),
			Status:    StatusUnhealthy,
			Message:   msg,
			ElapsedMs: elapsedMs(start),
			Details:   map[string]any{"url": p.url},
		}
	}
	defer resp.Body.Close()

	details := map[string]any{"url": p.url, "status_code": resp.StatusCode}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ProbeResult{
			Component: p.Name(),
			Status:    StatusDegraded,
			Message:   fmt.Sprintf("%s returned HTTP %d", p.name, resp.StatusCode),
			ElapsedMs: elapsedMs(start),
			Details:   details,
		}
	}

	return ProbeResult{
		Component: p.Name(),
		Status:    StatusHealthy,
		Message:   fmt.Sprintf("%s is operational", p.name),
		ElapsedMs: elapsedMs(start),
		Details:   details,
	}
}

// TCPProbe checks a collaborator that exposes no health endpoint at all
// (the egress filter proxy): reachability of its listen port is the whole
// signal.
type TCPProbe struct {
	name string
	addr string
}

// NewTCPProbe creates a probe that dials addr (host:port).
func NewTCPProbe(name, addr string) *TCPProbe {
	return &TCPProbe{name: name, addr: addr}
}

func (p *TCPProbe) Name() string { return p.name }

func (p *TCPProbe) Check(ctx context.Context) ProbeResult {
	start := time.Now()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		msg := fmt.Sprintf("%s is not reachable at %s: %v", p.name, p.addr, err)
		if ctx.Err() != nil {
			msg = fmt.Sprintf("%s connection timed out", p.name)
		}
		return ProbeResult{
			Component: p.Name(),
			Status:    StatusUnhealthy,
			Message:   msg,
			ElapsedMs: elapsedMs(start),
			Details:   map[string]any{"addr": p.addr},
		}
	}
	conn.Close()

	return ProbeResult{
		Component: p.Name(),
		Status:    StatusHealthy,
		Message:   fmt.Sprintf("%s is listening on %s", p.name, p.addr),
		ElapsedMs: elapsedMs(start),
		Details:   map[string]any{"addr": p.addr},
	}
}
