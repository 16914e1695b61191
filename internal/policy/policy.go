// Package policy defines the static capability table that partitions the
// shared store between warren's roles.
//
// Each role holds an allow-list of (key-prefix, operation) grants, evaluated
// deny-by-default by the store on every call. The table is built once at
// process start and is immutable afterwards: changing a role's capabilities
// means a restart. There is no runtime ACL editing surface.
package policy

import (
	"fmt"
	"strings"

	"github.com/warrenlabs/warren/pkg/broker"
)

// Operation classifies what a store call does to a key.
type Operation string

const (
	// OpRead covers value reads and queue-length inspection.
	OpRead Operation = "read"

	// OpWrite covers value writes (set and set-if-absent).
	OpWrite Operation = "write"

	// OpPush covers appending to a queue.
	OpPush Operation = "push"

	// OpPop covers blocking removal from a queue.
	OpPop Operation = "pop"

	// OpAdmin covers destructive operations: key deletion and queue
	// flushing. Categorically absent from every non-manager role's grants.
	OpAdmin Operation = "admin"
)

// Role names a capability principal. Roles are fixed for the lifetime of a
// deployment and map one-to-one onto store credentials.
type Role string

const (
	// RoleProducer is the trusted ingress side: creates tasks, queues
	// them, and polls for results.
	RoleProducer Role = "producer"

	// RoleConsumer is the untrusted execution side: drains the queue,
	// updates the tasks it dequeued, publishes results, and maintains its
	// liveness marker.
	RoleConsumer Role = "consumer"

	// RoleMonitor is the health aggregator's read-only view of the
	// namespace.
	RoleMonitor Role = "monitor"

	// RoleManager is the out-of-band operations role. It alone holds
	// OpAdmin, and it is exercised through the CLI, never through the
	// broker protocol.
	RoleManager Role = "manager"
)

// Validate checks if the Role is a valid enum value.
func (r Role) Validate() error {
	switch r {
	case RoleProducer, RoleConsumer, RoleMonitor, RoleManager:
		return nil
	default:
		return fmt.Errorf("unknown role: %q", r)
	}
}

// Grant allows a set of operations on one logical key prefix.
type Grant struct {
	Prefix string
	Ops    []Operation
}

// Table is the immutable role → grants mapping.
type Table struct {
	grants map[Role][]Grant
}

// Default returns the built-in capability table.
//
// The partitioning rules it encodes:
//   - only the producer creates tasks and queue entries
//   - only the consumer pops the queue, mutates tasks, and writes results
//     and heartbeats
//   - the monitor reads everything and mutates nothing
//   - only the manager holds destructive operations
func Default() *Table {
	return &Table{
		grants: map[Role][]Grant{
			RoleProducer: {
				{Prefix: broker.TaskKeyPrefix, Ops: []Operation{OpRead, OpWrite}},
				{Prefix: broker.ResultKeyPrefix, Ops: []Operation{OpRead}},
				{Prefix: broker.QueueKey, Ops: []Operation{OpPush, OpRead}},
			},
			RoleConsumer: {
				{Prefix: broker.TaskKeyPrefix, Ops: []Operation{OpRead, OpWrite}},
				{Prefix: broker.ResultKeyPrefix, Ops: []Operation{OpRead, OpWrite}},
				{Prefix: broker.QueueKey, Ops: []Operation{OpPop, OpRead}},
				{Prefix: broker.HeartbeatKeyPrefix, Ops: []Operation{OpRead, OpWrite}},
			},
			RoleMonitor: {
				{Prefix: broker.TaskKeyPrefix, Ops: []Operation{OpRead}},
				{Prefix: broker.ResultKeyPrefix, Ops: []Operation{OpRead}},
				{Prefix: broker.QueueKey, Ops: []Operation{OpRead}},
				{Prefix: broker.HeartbeatKeyPrefix, Ops: []Operation{OpRead}},
			},
			RoleManager: {
				{Prefix: broker.TaskKeyPrefix, Ops: []Operation{OpRead, OpWrite, OpAdmin}},
				{Prefix: broker.ResultKeyPrefix, Ops: []Operation{OpRead, OpWrite, OpAdmin}},
				{Prefix: broker.QueueKey, Ops: []Operation{OpRead, OpPush, OpPop, OpAdmin}},
				{Prefix: broker.HeartbeatKeyPrefix, Ops: []Operation{OpRead, OpWrite, OpAdmin}},
			},
		},
	}
}

// Authorize reports whether role may perform op on the given logical key.
// Evaluation is a deny-by-default allow-list lookup: the key must fall under
// a granted prefix that lists the operation.
func (t *Table) Authorize(role Role, key string, op Operation) bool {
	for _, grant := range t.grants[role] {
		if !strings.HasPrefix(key, grant.Prefix) {
			continue
		}
		for _, granted := range grant.Ops {
			if granted == op {
				return true
			}
		}
	}
	return false
}

// Validate enforces the table's safety invariant: no role other than the
// manager may hold OpAdmin anywhere.
func (t *Table) Validate() error {
	for role, grants := range t.grants {
		if role == RoleManager {
			continue
		}
		for _, grant := range grants {
			for _, op := range grant.Ops {
				if op == OpAdmin {
					return fmt.Errorf("role %q holds admin on prefix %q: only the manager may perform destructive operations", role, grant.Prefix)
				}
			}
		}
	}
	return nil
}
