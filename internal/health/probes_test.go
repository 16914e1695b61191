package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrenlabs/warren/internal/policy"
	"github.com/warrenlabs/warren/internal/store"
	"github.com/warrenlabs/warren/pkg/broker"
)

// pingerFunc adapts a function to the Pinger interface.
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// setupMonitorBroker creates a broker over a monitor-scoped store and a
// manager-scoped companion broker for seeding test state.
func setupMonitorBroker(t *testing.T) (*broker.Broker, *broker.Broker) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	monitor, err := store.New(&redis.Options{Addr: mr.Addr()}, "test-instance", policy.RoleMonitor, policy.Default())
	require.NoError(t, err)
	t.Cleanup(func() { monitor.Close() })

	manager, err := store.New(&redis.Options{Addr: mr.Addr()}, "test-instance", policy.RoleManager, policy.Default())
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	return broker.New(monitor), broker.NewConsumer(manager, "worker-1")
}

func TestRedisProbe(t *testing.T) {
	ctx := context.Background()

	t.Run("responding store is healthy", func(t *testing.T) {
		probe := NewRedisProbe(pingerFunc(func(ctx context.Context) error { return nil }), "localhost:6379")

		result := probe.Check(ctx)
		assert.Equal(t, "redis", result.Component)
		assert.Equal(t, StatusHealthy, result.Status)
		assert.Equal(t, "localhost:6379", result.Details["addr"])
	})

	t.Run("unreachable store is unhealthy", func(t *testing.T) {
		probe := NewRedisProbe(pingerFunc(func(ctx context.Context) error {
			return errors.New("connection refused")
		}), "localhost:6379")

		result := probe.Check(ctx)
		assert.Equal(t, StatusUnhealthy, result.Status)
		assert.Contains(t, result.Message, "cannot reach redis")
	})
}

func TestQueueProbe(t *testing.T) {
	ctx := context.Background()

	t.Run("shallow queue is healthy", func(t *testing.T) {
		monitor, seeder := setupMonitorBroker(t)
		_, err := seeder.Submit(ctx, "payload")
		require.NoError(t, err)

		probe := NewQueueProbe(monitor, 5)
		result := probe.Check(ctx)
		assert.Equal(t, "queue", result.Component)
		assert.Equal(t, StatusHealthy, result.Status)
		assert.Equal(t, int64(1), result.Details["depth"])
	})

	t.Run("backlog at the threshold is degraded", func(t *testing.T) {
		monitor, seeder := setupMonitorBroker(t)
		for i := 0; i < 3; i++ {
			_, err := seeder.Submit(ctx, "payload")
			require.NoError(t, err)
		}

		probe := NewQueueProbe(monitor, 3)
		result := probe.Check(ctx)
		assert.Equal(t, StatusDegraded, result.Status)
		assert.Contains(t, result.Message, "backlog building")
	})
}

func TestHeartbeatProbe(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh heartbeat is healthy", func(t *testing.T) {
		monitor, seeder := setupMonitorBroker(t)
		require.NoError(t, seeder.Heartbeat(ctx))

		probe := NewHeartbeatProbe(monitor, "worker-1", time.Minute)
		result := probe.Check(ctx)
		assert.Equal(t, "consumer", result.Component)
		assert.Equal(t, StatusHealthy, result.Status)
	})

	t.Run("missing heartbeat is degraded with an explanation", func(t *testing.T) {
		monitor, _ := setupMonitorBroker(t)

		probe := NewHeartbeatProbe(monitor, "worker-1", time.Minute)
		result := probe.Check(ctx)
		assert.Equal(t, StatusDegraded, result.Status)
		assert.Contains(t, result.Message, "no heartbeat recorded")
	})

	t.Run("stale heartbeat is degraded", func(t *testing.T) {
		monitor, seeder := setupMonitorBroker(t)
		require.NoError(t, seeder.Heartbeat(ctx))

		probe := NewHeartbeatProbe(monitor, "worker-1", time.Nanosecond)
		result := probe.Check(ctx)
		assert.Equal(t, StatusDegraded, result.Status)
		assert.Contains(t, result.Message, "stale")
	})
}

func TestHTTPProbe(t *testing.T) {
	ctx := context.Background()

	t.Run("2xx is healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		probe := NewHTTPProbe("gateway", srv.URL, srv.Client())
		result := probe.Check(ctx)
		assert.Equal(t, "gateway", result.Component)
		assert.Equal(t, StatusHealthy, result.Status)
		assert.Equal(t, http.StatusOK, result.Details["status_code"])
	})

	t.Run("error status is degraded", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)

		probe := NewHTTPProbe("gateway", srv.URL, srv.Client())
		result := probe.Check(ctx)
		assert.Equal(t, StatusDegraded, result.Status)
		assert.Contains(t, result.Message, "HTTP 500")
	})

	t.Run("refused connection is unhealthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := srv.URL
		srv.Close()

		probe := NewHTTPProbe("gateway", url, nil)
		result := probe.Check(ctx)
		assert.Equal(t, StatusUnhealthy, result.Status)
		assert.Contains(t, result.Message, "cannot connect")
	})

	t.Run("deadline overrun reports a timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		t.Cleanup(srv.Close)

		probeCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		probe := NewHTTPProbe("gateway", srv.URL, srv.Client())
		result := probe.Check(probeCtx)
		assert.Equal(t, StatusUnhealthy, result.Status)
		assert.Contains(t, result.Message, "timed out")
	})
}

func TestTCPProbe(t *testing.T) {
	ctx := context.Background()

	t.Run("listening port is healthy", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		t.Cleanup(func() { ln.Close() })

		probe := NewTCPProbe("egress-proxy", ln.Addr().String())
		result := probe.Check(ctx)
		assert.Equal(t, "egress-proxy", result.Component)
		assert.Equal(t, StatusHealthy, result.Status)
	})

	t.Run("closed port is unhealthy", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		probe := NewTCPProbe("egress-proxy", addr)
		result := probe.Check(ctx)
		assert.Equal(t, StatusUnhealthy, result.Status)
		assert.Contains(t, result.Message, "not reachable")
	})
}
