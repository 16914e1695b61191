// Package broker implements the task hand-off protocol between the trusted
// producer (gateway) and the untrusted consumer (agent).
//
// The two sides never communicate directly. Work flows through a shared,
// namespace-partitioned Redis store: the producer writes a task record and
// pushes its identifier onto a FIFO work queue; the consumer blocks on the
// queue, loads the record, executes it, and publishes a result record. Any
// identity with read access can poll for the result by identifier.
//
// The broker is layered on the Store interface. Store implementations are
// responsible for access control: every operation is evaluated against the
// calling identity's capability grants, so a producer-scoped broker cannot
// write results and a consumer-scoped broker cannot push new work. See
// internal/store for the Redis implementation and internal/policy for the
// grant table.
//
// Key schema (logical keys, namespaced by the store):
//
//	task:{task_id}            task record, JSON
//	result:{task_id}          result record, JSON, written exactly once
//	queue                     FIFO list of task identifiers
//	heartbeat:{consumer_id}   consumer liveness marker, RFC 3339 timestamp
//
// Writing the task record and pushing its identifier are two separate
// operations; there is no cross-key atomicity. A reader that observes a
// queue entry is guaranteed the record write happened before the push,
// because Submit orders them that way.
package broker
