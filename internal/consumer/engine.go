// Package consumer implements warrend's execution engine: the untrusted
// side of the broker protocol. It drains the work queue, hands payloads to
// the execution collaborator, and publishes results. It never talks to the
// producer directly: the store is the only channel between them, and the
// consumer's identity only holds the grants that loop needs.
package consumer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warrenlabs/warren/pkg/broker"
)

// Engine runs two concurrent goroutines:
//   - the worker loop: blocking take, execute, publish result
//   - the heartbeat loop: periodic liveness marker for the health aggregator
//
// Both shut down via context cancellation; Start blocks until they exit.
type Engine struct {
	broker   *broker.Broker
	executor Executor
	cfg      Config
	wg       sync.WaitGroup
}

// Config carries the engine's runtime settings.
type Config struct {
	ConsumerID        string
	TakeTimeout       time.Duration // how long one blocking pop waits before re-checking for shutdown
	TaskTimeout       time.Duration // deadline for a single execution call
	HeartbeatInterval time.Duration
	RetryBackoff      time.Duration // pause after a store failure before retrying the loop
}

// withDefaults fills unset durations.
func (c Config) withDefaults() Config {
	if c.TakeTimeout <= 0 {
		c.TakeTimeout = 5 * time.Second
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 2 * time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	return c
}

// New creates an engine. The broker must be consumer-scoped (created with
// broker.NewConsumer) or result publication will be denied by policy.
func New(b *broker.Broker, executor Executor, cfg Config) *Engine {
	return &Engine{
		broker:   b,
		executor: executor,
		cfg:      cfg.withDefaults(),
	}
}

// Start launches the worker and heartbeat goroutines and blocks until the
// context is cancelled and both have exited.
func (e *Engine) Start(ctx context.Context) error {
	log.Printf("[INFO] Consumer engine starting, consumer='%s'", e.cfg.ConsumerID)

	e.wg.Add(1)
	go e.workerLoop(ctx)

	e.wg.Add(1)
	go e.heartbeatLoop(ctx)

	<-ctx.Done()
	log.Printf("[INFO] Shutdown signal received, waiting for in-flight work")

	e.wg.Wait()
	log.Printf("[INFO] Consumer engine stopped")
	return nil
}

// workerLoop drains the queue until cancellation. The take timeout bounds
// how long shutdown can be delayed while blocked on an empty queue.
func (e *Engine) workerLoop(ctx context.Context) {
	defer e.wg.Done()
	defer log.Printf("[DEBUG] Worker loop exited")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		taskID, err := e.broker.Take(ctx, e.cfg.TakeTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[ERROR] Take failed: %v", err)
			e.pause(ctx, e.cfg.RetryBackoff)
			continue
		}
		if taskID == "" {
			// Timeout with nothing to do.
			continue
		}

		e.process(ctx, taskID)
	}
}

// process executes one dequeued task and publishes its result. Failures of
// the execution call become failed results; failures of the store are
// logged and left to the lease sweeper, since a consumer that cannot reach
// the store cannot publish anything anyway.
func (e *Engine) process(ctx context.Context, taskID string) {
	log.Printf("[INFO] Executing task %s", taskID)

	task, err := e.broker.Load(ctx, taskID)
	if err != nil {
		log.Printf("[ERROR] Failed to load dequeued task %s: %v", taskID, err)
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
	output, execErr := e.executor.Execute(execCtx, task.Payload)
	cancel()

	if execErr != nil {
		log.Printf("[WARN] Task %s failed: %v", taskID, execErr)
		if err := e.broker.Fail(ctx, taskID, execErr.Error()); err != nil {
			if broker.IsAlreadyTerminal(err) {
				log.Printf("[WARN] Task %s already terminal, keeping first result", taskID)
				return
			}
			log.Printf("[ERROR] Failed to publish failure for task %s: %v", taskID, err)
		}
		return
	}

	if err := e.broker.Complete(ctx, taskID, output); err != nil {
		if broker.IsAlreadyTerminal(err) {
			log.Printf("[WARN] Task %s already terminal, keeping first result", taskID)
			return
		}
		log.Printf("[ERROR] Failed to publish result for task %s: %v", taskID, err)
		return
	}

	log.Printf("[INFO] Task %s completed", taskID)
}

// heartbeatLoop maintains the liveness marker the heartbeat probe reads.
// A write failure is logged and retried on the next tick; the marker going
// stale is exactly the signal the aggregator is designed to surface.
func (e *Engine) heartbeatLoop(ctx context.Context) {
	defer e.wg.Done()
	defer log.Printf("[DEBUG] Heartbeat loop exited")

	// Write one marker immediately so the aggregator sees us as soon as
	// we start, then tick.
	e.beat(ctx)

	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.beat(ctx)
		}
	}
}

func (e *Engine) beat(ctx context.Context) {
	if err := e.broker.Heartbeat(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[WARN] Heartbeat write failed: %v", err)
	}
}

// pause sleeps for d or until cancellation, whichever is first.
func (e *Engine) pause(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
