package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultLeaseTTL is how long a consumer may hold a dequeued task before its
// claim is considered abandoned and the task becomes eligible for re-queue.
const DefaultLeaseTTL = 5 * time.Minute

// Store is the narrow contract the broker needs from the namespaced store.
// Implementations enforce access control on every call: each method returns
// an error matching ErrAccessDenied when the bound identity's grants do not
// cover the key's prefix and the operation.
//
// Within one queue key the store guarantees FIFO ordering, and each entry is
// delivered to exactly one popping caller. The store does not guarantee
// atomicity across keys.
type Store interface {
	// Get returns the value at key, or an error matching ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes the value at key, overwriting any existing value.
	Set(ctx context.Context, key, value string) error

	// SetNX writes the value at key only if the key does not exist.
	// Returns false (and no error) when the key was already present.
	SetNX(ctx context.Context, key, value string) (bool, error)

	// PushQueue appends a value to the queue at key.
	PushQueue(ctx context.Context, key, value string) error

	// PopQueueBlocking removes and returns the oldest queue entry,
	// suspending the caller until an entry is available or timeout elapses.
	// On timeout it returns an error matching ErrTimeout, distinct from any
	// store failure, so callers can tell "nothing to do" from "broken".
	PopQueueBlocking(ctx context.Context, key string, timeout time.Duration) (string, error)

	// QueueLength returns the number of entries in the queue at key.
	QueueLength(ctx context.Context, key string) (int64, error)

	// ScanPrefix returns all logical keys under the given prefix.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}

// Broker implements the task hand-off protocol over a Store.
//
// A Broker is bound to the identity of the Store it wraps: a producer-scoped
// store yields a broker that can submit and poll, a consumer-scoped store
// yields one that can take and complete. The store's access policy, not the
// broker, is what enforces this.
type Broker struct {
	store      Store
	consumerID string
	leaseTTL   time.Duration
}

// New creates a broker for producer- or monitor-side use (submit, load,
// fetch results, inspect the queue).
func New(store Store) *Broker {
	return &Broker{
		store:    store,
		leaseTTL: DefaultLeaseTTL,
	}
}

// NewConsumer creates a broker for consumer-side use. The consumer identity
// is stamped onto tasks it dequeues and results it publishes.
func NewConsumer(store Store, consumerID string) *Broker {
	return &Broker{
		store:      store,
		consumerID: consumerID,
		leaseTTL:   DefaultLeaseTTL,
	}
}

// SetLeaseTTL overrides the lease duration applied when a task is dequeued.
func (b *Broker) SetLeaseTTL(d time.Duration) {
	if d > 0 {
		b.leaseTTL = d
	}
}

// Submit creates a task record with a fresh identifier and pushes the
// identifier onto the work queue. Returns the task identifier.
//
// The record write and the queue push are two separate operations. If the
// record write succeeds but the push fails, the task is orphaned: it exists
// but will never be picked up. Callers must treat that as a failed
// submission and resubmit with a new identifier; retrying only the push
// would risk a duplicate queue entry.
func (b *Broker) Submit(ctx context.Context, payload string) (string, error) {
	if len(payload) > MaxPayloadBytes {
		return "", fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadBytes)
	}

	task := &Task{
		ID:          uuid.New().String(),
		Payload:     payload,
		Status:      TaskStatusQueued,
		CreatedAtMs: time.Now().UnixMilli(),
	}

	if err := b.writeTaskNX(ctx, task); err != nil {
		return "", err
	}

	// Record write happens-before the push: a consumer that pops this
	// identifier is guaranteed to find the record.
	if err := b.store.PushQueue(ctx, QueueKey, task.ID); err != nil {
		return "", fmt.Errorf("task %s written but not queued, resubmit required: %w", task.ID, err)
	}

	return task.ID, nil
}

// Take blocks on the work queue until a task identifier is available or
// timeout elapses. On timeout it returns ("", nil): an empty queue is
// "nothing to do", not an error.
//
// The dequeued task is transitioned to in_progress, stamped with the
// consumer identity, and given a lease. A consumer that dies before
// completing leaves the task in_progress until the lease lapses and
// RequeueExpired puts it back on the queue.
func (b *Broker) Take(ctx context.Context, timeout time.Duration) (string, error) {
	taskID, err := b.store.PopQueueBlocking(ctx, QueueKey, timeout)
	if err != nil {
		if IsTimeout(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to pop work queue: %w", err)
	}

	task, err := b.Load(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("dequeued task %s: %w", taskID, err)
	}

	task.Status = TaskStatusInProgress
	task.ConsumerID = b.consumerID
	task.LeaseExpiresAtMs = time.Now().Add(b.leaseTTL).UnixMilli()

	if err := b.writeTask(ctx, task); err != nil {
		return "", fmt.Errorf("failed to mark task %s in progress: %w", taskID, err)
	}

	return taskID, nil
}

// Load retrieves a task record by identifier. Returns an error matching
// ErrNotFound when the identifier is unknown to the caller's namespace.
func (b *Broker) Load(ctx context.Context, taskID string) (*Task, error) {
	data, err := b.store.Get(ctx, TaskKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	var task Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", taskID, err)
	}

	return &task, nil
}

// Complete publishes a successful result for the task and transitions it to
// completed. The second completion of the same task fails with
// ErrAlreadyTerminal and leaves the first result untouched.
func (b *Broker) Complete(ctx context.Context, taskID, output string) error {
	return b.finish(ctx, taskID, TaskStatusCompleted, output, "")
}

// Fail publishes an error result for the task and transitions it to failed.
// Subject to the same idempotency guard as Complete.
func (b *Broker) Fail(ctx context.Context, taskID, errorDetail string) error {
	return b.finish(ctx, taskID, TaskStatusFailed, "", errorDetail)
}

// finish writes the result record then transitions the task status. The
// result is written with SetNX so that, even with two racing completers,
// exactly one result record is ever created; the loser observes the
// existing record and reports ErrAlreadyTerminal.
func (b *Broker) finish(ctx context.Context, taskID string, status TaskStatus, output, errorDetail string) error {
	task, err := b.Load(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Status.Terminal() {
		return fmt.Errorf("task %s is already %s: %w", taskID, task.Status, ErrAlreadyTerminal)
	}

	result := &Result{
		TaskID:        taskID,
		Output:        output,
		ErrorDetail:   errorDetail,
		CompletedAtMs: time.Now().UnixMilli(),
		ConsumerID:    b.consumerID,
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result for task %s: %w", taskID, err)
	}

	created, err := b.store.SetNX(ctx, ResultKey(taskID), string(data))
	if err != nil {
		return fmt.Errorf("failed to write result for task %s: %w", taskID, err)
	}
	if !created {
		return fmt.Errorf("result for task %s already published: %w", taskID, ErrAlreadyTerminal)
	}

	task.Status = status
	task.LeaseExpiresAtMs = 0
	if err := b.writeTask(ctx, task); err != nil {
		return fmt.Errorf("result written but status transition failed for task %s: %w", taskID, err)
	}

	return nil
}

// FetchResult returns the result record for a task. Returns an error
// matching ErrNotFound when the task does not exist, and ErrPending when
// the task exists but has not reached a terminal state.
func (b *Broker) FetchResult(ctx context.Context, taskID string) (*Result, error) {
	task, err := b.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !task.Status.Terminal() {
		return nil, fmt.Errorf("task %s is %s: %w", taskID, task.Status, ErrPending)
	}

	data, err := b.store.Get(ctx, ResultKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to load result for task %s: %w", taskID, err)
	}

	var result Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to decode result for task %s: %w", taskID, err)
	}

	return &result, nil
}

// QueueDepth returns the number of task identifiers waiting on the work queue.
func (b *Broker) QueueDepth(ctx context.Context) (int64, error) {
	depth, err := b.store.QueueLength(ctx, QueueKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return depth, nil
}

// ListTasks returns the identifiers of all task records in the namespace.
// Intended for management tooling; order is unspecified.
func (b *Broker) ListTasks(ctx context.Context) ([]string, error) {
	keys, err := b.store.ScanPrefix(ctx, TaskKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to scan tasks: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, TaskKeyPrefix))
	}
	return ids, nil
}

// RequeueExpired re-queues in_progress tasks whose lease lapsed before now,
// returning the identifiers it re-queued. This is the recovery path for
// consumers that died between dequeue and result publication. It is invoked
// deliberately (CLI or an operator's timer), never as a hidden background
// task.
//
// A re-queued task keeps its identifier, so end-to-end execution is
// at-least-once: the idempotency guard in Complete ensures at most one
// result record regardless.
func (b *Broker) RequeueExpired(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := b.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	nowMs := now.UnixMilli()
	var requeued []string

	for _, id := range ids {
		task, err := b.Load(ctx, id)
		if err != nil {
			return requeued, err
		}

		if task.Status != TaskStatusInProgress || task.LeaseExpiresAtMs == 0 || task.LeaseExpiresAtMs > nowMs {
			continue
		}

		task.Status = TaskStatusQueued
		task.ConsumerID = ""
		task.LeaseExpiresAtMs = 0
		if err := b.writeTask(ctx, task); err != nil {
			return requeued, fmt.Errorf("failed to reset task %s: %w", id, err)
		}
		if err := b.store.PushQueue(ctx, QueueKey, id); err != nil {
			return requeued, fmt.Errorf("task %s reset but not re-queued: %w", id, err)
		}
		requeued = append(requeued, id)
	}

	return requeued, nil
}

// Heartbeat records the consumer's liveness marker with the current time.
// The health aggregator's heartbeat probe reads this to detect stalled or
// dead consumers.
func (b *Broker) Heartbeat(ctx context.Context) error {
	if b.consumerID == "" {
		return fmt.Errorf("heartbeat requires a consumer-scoped broker")
	}
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := b.store.Set(ctx, HeartbeatKey(b.consumerID), stamp); err != nil {
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}
	return nil
}

// LastHeartbeat returns the time of a consumer's most recent liveness
// marker. Returns an error matching ErrNotFound when no marker exists.
func (b *Broker) LastHeartbeat(ctx context.Context, consumerID string) (time.Time, error) {
	stamp, err := b.store.Get(ctx, HeartbeatKey(consumerID))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read heartbeat for %s: %w", consumerID, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed heartbeat for %s: %w", consumerID, err)
	}
	return ts, nil
}

// writeTask validates and stores a task record, overwriting the existing one.
func (b *Broker) writeTask(ctx context.Context, task *Task) error {
	data, err := b.encodeTask(task)
	if err != nil {
		return err
	}
	return b.store.Set(ctx, TaskKey(task.ID), data)
}

// writeTaskNX validates and stores a fresh task record. A task identifier
// maps to at most one record for its entire lifetime, so an existing key is
// a hard error rather than an overwrite.
func (b *Broker) writeTaskNX(ctx context.Context, task *Task) error {
	data, err := b.encodeTask(task)
	if err != nil {
		return err
	}

	created, err := b.store.SetNX(ctx, TaskKey(task.ID), data)
	if err != nil {
		return fmt.Errorf("failed to write task %s: %w", task.ID, err)
	}
	if !created {
		return fmt.Errorf("task identifier collision: %s already exists", task.ID)
	}
	return nil
}

func (b *Broker) encodeTask(task *Task) (string, error) {
	if err := task.Validate(); err != nil {
		return "", fmt.Errorf("invalid task: %w", err)
	}

	data, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}
	return string(data), nil
}
