package consumer

import (
	"context"
	"errors"
	"sync"
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

// stubExecutor runs a fixed function instead of calling out over HTTP.
type stubExecutor struct {
	mu    sync.Mutex
	calls []string
	fn    func(payload string) (string, error)
}

func (e *stubExecutor) Execute(ctx context.Context, payload string) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, payload)
	e.mu.Unlock()
	return e.fn(payload)
}

// setupBrokers creates a consumer-scoped broker for the engine under test
// and a producer-scoped broker for driving it, sharing one miniredis.
func setupBrokers(t *testing.T) (consumerB, producerB *broker.Broker) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cs, err := store.New(&redis.Options{Addr: mr.Addr()}, "test-instance", policy.RoleConsumer, policy.Default())
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	ps, err := store.New(&redis.Options{Addr: mr.Addr()}, "test-instance", policy.RoleProducer, policy.Default())
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })

	return broker.NewConsumer(cs, "worker-1"), broker.New(ps)
}

// runEngine starts the engine in the background and returns a stop function
// that cancels it and waits for a clean exit.
func runEngine(t *testing.T, e *Engine) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("engine did not shut down")
		}
	}
}

func TestEngineProcessesTasks(t *testing.T) {
	ctx := context.Background()
	consumerB, producerB := setupBrokers(t)

	executor := &stubExecutor{fn: func(payload string) (string, error) {
		return "echo: " + payload, nil
	}}

	taskID, err := producerB.Submit(ctx, "hello")
	require.NoError(t, err)

	engine := New(consumerB, executor, Config{
		ConsumerID:   "worker-1",
		TakeTimeout:  time.Second,
		RetryBackoff: 50 * time.Millisecond,
	})
	stop := runEngine(t, engine)
	defer stop()

	require.Eventually(t, func() bool {
		result, err := producerB.FetchResult(ctx, taskID)
		return err == nil && result.Output == "echo: hello"
	}, 10*time.Second, 50*time.Millisecond, "result never published")

	result, err := producerB.FetchResult(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", result.ConsumerID)
	assert.Empty(t, result.ErrorDetail)
}

func TestEnginePublishesFailures(t *testing.T) {
	ctx := context.Background()
	consumerB, producerB := setupBrokers(t)

	executor := &stubExecutor{fn: func(payload string) (string, error) {
		return "", errors.New("model refused")
	}}

	taskID, err := producerB.Submit(ctx, "hello")
	require.NoError(t, err)

	engine := New(consumerB, executor, Config{
		ConsumerID:   "worker-1",
		TakeTimeout:  time.Second,
		RetryBackoff: 50 * time.Millisecond,
	})
	stop := runEngine(t, engine)
	defer stop()

	require.Eventually(t, func() bool {
		result, err := producerB.FetchResult(ctx, taskID)
		return err == nil && result.ErrorDetail != ""
	}, 10*time.Second, 50*time.Millisecond, "failure never published")

	result, err := producerB.FetchResult(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "model refused", result.ErrorDetail)
	assert.Empty(t, result.Output)

	task, err := producerB.Load(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, broker.TaskStatusFailed, task.Status)
}

func TestEngineDrainsBacklogInOrder(t *testing.T) {
	ctx := context.Background()
	consumerB, producerB := setupBrokers(t)

	executor := &stubExecutor{fn: func(payload string) (string, error) {
		return payload, nil
	}}

	var ids []string
	for _, payload := range []string{"one", "two", "three"} {
		id, err := producerB.Submit(ctx, payload)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	engine := New(consumerB, executor, Config{ConsumerID: "worker-1", TakeTimeout: time.Second})
	stop := runEngine(t, engine)
	defer stop()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			if _, err := producerB.FetchResult(ctx, id); err != nil {
				return false
			}
		}
		return true
	}, 10*time.Second, 50*time.Millisecond, "backlog never drained")

	executor.mu.Lock()
	defer executor.mu.Unlock()
	assert.Equal(t, []string{"one", "two", "three"}, executor.calls)
}

func TestEngineWritesHeartbeat(t *testing.T) {
	ctx := context.Background()
	consumerB, _ := setupBrokers(t)

	executor := &stubExecutor{fn: func(payload string) (string, error) { return payload, nil }}

	engine := New(consumerB, executor, Config{
		ConsumerID:        "worker-1",
		TakeTimeout:       time.Second,
		HeartbeatInterval: 50 * time.Millisecond,
	})
	stop := runEngine(t, engine)
	defer stop()

	require.Eventually(t, func() bool {
		_, err := consumerB.LastHeartbeat(ctx, "worker-1")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond, "heartbeat never written")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 5*time.Second, cfg.TakeTimeout)
	assert.Equal(t, 2*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 2*time.Second, cfg.RetryBackoff)

	custom := Config{TakeTimeout: time.Second}.withDefaults()
	assert.Equal(t, time.Second, custom.TakeTimeout)
}
