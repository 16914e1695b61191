package broker

// Logical key helpers
//
// The broker addresses the store with logical keys. The store namespaces
// them per instance before they reach Redis (warren:{instance}:{key}), so
// multiple warren instances can safely coexist on one Redis server, and
// evaluates the calling identity's grants against the logical prefix.

// Key prefixes, one per key family. These are the units of access control:
// capability grants are expressed against these prefixes.
const (
	TaskKeyPrefix      = "task:"
	ResultKeyPrefix    = "result:"
	HeartbeatKeyPrefix = "heartbeat:"

	// QueueKey is the single FIFO work queue. It holds task identifiers
	// only, never payloads.
	QueueKey = "queue"
)

// TaskKey returns the logical key for a task record.
// Pattern: task:{task_id}
func TaskKey(taskID string) string {
	return TaskKeyPrefix + taskID
}

// ResultKey returns the logical key for a result record.
// Pattern: result:{task_id}
func ResultKey(taskID string) string {
	return ResultKeyPrefix + taskID
}

// HeartbeatKey returns the logical key for a consumer's liveness marker.
// Pattern: heartbeat:{consumer_id}
func HeartbeatKey(consumerID string) string {
	return HeartbeatKeyPrefix + consumerID
}
