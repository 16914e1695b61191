package broker

import "errors"

// Error taxonomy for broker and store operations.
//
// Callers should match these with errors.Is (or the helper predicates below)
// rather than comparing directly, since they are usually wrapped with
// operation context.
var (
	// ErrAccessDenied indicates the calling identity's grants do not cover
	// the requested key prefix and operation. Never retried; surfaced
	// immediately to the caller.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound indicates the identifier is unknown within the caller's
	// namespace, either truly absent or outside the caller's grants.
	ErrNotFound = errors.New("not found")

	// ErrTimeout indicates an operation exceeded its deadline. Distinct from
	// both success-with-empty-result and hard failure; callers may retry
	// with backoff.
	ErrTimeout = errors.New("operation timed out")

	// ErrStoreUnavailable indicates the underlying store is unreachable.
	// Retried with backoff at the calling layer.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrAlreadyTerminal indicates a completion was attempted on a task that
	// already reached a terminal state. The first completion wins; the
	// second is an error, never a silent overwrite.
	ErrAlreadyTerminal = errors.New("task already terminal")

	// ErrPending indicates the task exists but has not reached a terminal
	// state yet, so no result record is available.
	ErrPending = errors.New("result pending")
)

// IsNotFound returns true if err indicates a missing or out-of-scope identifier.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if err indicates a capability violation.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsPending returns true if err indicates the task has not completed yet.
func IsPending(err error) bool {
	return errors.Is(err, ErrPending)
}

// IsTimeout returns true if err indicates a deadline was exceeded.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsAlreadyTerminal returns true if err indicates a double completion.
func IsAlreadyTerminal(err error) bool {
	return errors.Is(err, ErrAlreadyTerminal)
}
