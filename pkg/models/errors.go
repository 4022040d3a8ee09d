package models

import "errors"

// Sentinel errors shared across the engine. Callers match with errors.Is;
// packages wrap these with %w to add context.
var (
	// ErrNotFound covers missing issues, files, agents, and plan nodes.
	ErrNotFound = errors.New("not found")

	// ErrValidation covers malformed tool arguments and rejected state
	// transitions (e.g. updating a completed issue).
	ErrValidation = errors.New("validation failed")

	// ErrDiffConflict means a unified diff hunk did not match the target
	// file; nothing was written.
	ErrDiffConflict = errors.New("diff conflict")

	// ErrExecution covers subprocess failures from execute_module and
	// execute_command.
	ErrExecution = errors.New("execution failed")

	// ErrRunFailure means the reasoning service reported a run as failed,
	// expired, or cancelled.
	ErrRunFailure = errors.New("run failed")

	// ErrRecursionLimit means a chat_with_other_agent chain exceeded the
	// configured nesting depth.
	ErrRecursionLimit = errors.New("agent chat recursion limit exceeded")

	// ErrConcurrency means a concurrent writer invalidated this operation.
	ErrConcurrency = errors.New("concurrent modification")
)
