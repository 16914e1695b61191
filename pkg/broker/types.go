package broker

import (
	"fmt"

	"github.com/google/uuid"
)

// MaxPayloadBytes bounds the size of a task payload. Payloads are opaque to
// the broker; the bound exists to keep records small enough that the queue
// can hold references only and records never need chunking.
const MaxPayloadBytes = 64 * 1024

// TaskStatus defines the lifecycle state of a task.
// Tasks progress queued → in_progress → completed/failed. The two terminal
// states are immutable once reached.
type TaskStatus string

const (
	// TaskStatusQueued indicates the task record exists and its identifier
	// is (or is about to be) on the work queue.
	TaskStatusQueued TaskStatus = "queued"

	// TaskStatusInProgress indicates a consumer has dequeued the task and
	// holds a lease on it.
	TaskStatusInProgress TaskStatus = "in_progress"

	// TaskStatusCompleted indicates the consumer published a successful result.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed indicates the consumer published an error result.
	TaskStatusFailed TaskStatus = "failed"
)

// Validate checks if the TaskStatus is a valid enum value.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskStatusQueued, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown task status: %q", s)
	}
}

// Terminal returns true for the two immutable end states.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task represents one unit of work handed off from the producer to the
// consumer. The record is owned by the producer at creation, mutated only by
// the consumer that dequeued it, and immutable once terminal.
type Task struct {
	ID               string     `json:"id"`                            // UUID - unique identifier for this task
	Payload          string     `json:"payload"`                       // Opaque content, bounded by MaxPayloadBytes
	Status           TaskStatus `json:"status"`                        // Current lifecycle state
	CreatedAtMs      int64      `json:"created_at_ms"`                 // Unix timestamp in milliseconds at creation
	ConsumerID       string     `json:"consumer_id,omitempty"`         // Identity of the consumer that dequeued it
	LeaseExpiresAtMs int64      `json:"lease_expires_at_ms,omitempty"` // When the consumer's claim lapses and the task may be re-queued
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if !isValidUUID(t.ID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}

	if len(t.Payload) > MaxPayloadBytes {
		return fmt.Errorf("payload too large: %d bytes (max %d)", len(t.Payload), MaxPayloadBytes)
	}

	if err := t.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	if t.CreatedAtMs <= 0 {
		return fmt.Errorf("invalid created_at_ms: must be > 0, got %d", t.CreatedAtMs)
	}

	return nil
}

// Result represents the outcome of one task. Created exactly once by the
// consumer that executed the task; read-many by any authorized identity;
// never mutated after creation.
type Result struct {
	TaskID        string `json:"task_id"`                // Foreign key to the task
	Output        string `json:"output,omitempty"`       // Output payload on success
	ErrorDetail   string `json:"error_detail,omitempty"` // Failure detail when the task failed
	CompletedAtMs int64  `json:"completed_at_ms"`        // Unix timestamp in milliseconds at completion
	ConsumerID    string `json:"consumer_id"`            // Identity of the producing consumer
}

// Validate checks if the Result has valid field values.
func (r *Result) Validate() error {
	if !isValidUUID(r.TaskID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}

	if r.CompletedAtMs <= 0 {
		return fmt.Errorf("invalid completed_at_ms: must be > 0, got %d", r.CompletedAtMs)
	}

	if r.ConsumerID == "" {
		return fmt.Errorf("consumer_id cannot be empty")
	}

	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
