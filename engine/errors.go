package engine

import "errors"

// Sentinel errors returned by Engine implementations. Adapters wrap these
// with adapter-specific context via fmt.Errorf("...: %w", ...) so callers
// can still errors.Is against the sentinel.
var (
	// ErrNotFound is returned by SendSignal when the target workflow ID is
	// unknown to the engine.
	ErrNotFound = errors.New("workflow not found")

	// ErrDuplicateRejected is returned by StartWorkflow when
	// DuplicatePolicy is RejectDuplicate and a workflow with the requested ID
	// already exists, in any state.
	ErrDuplicateRejected = errors.New("duplicate workflow rejected")
)
