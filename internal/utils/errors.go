package utils

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure kinds the orchestrator understands. Every
// phase handler failure must map to one of these; nothing unstructured may
// cross the orchestrator boundary.
var (
	// ErrInvalidTransition marks a phase output whose tag does not match the
	// session's expected phase, or a routing target the transition table
	// forbids. Contract error, fatal to the call.
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrValidation marks a malformed or incomplete request.
	ErrValidation = errors.New("validation failed")

	// ErrNoPendingApproval marks an approval signal targeting a session that
	// is not awaiting approval. The session is left unchanged.
	ErrNoPendingApproval = errors.New("no pending approval for session")

	// ErrInvestigatorTimeout marks an investigator that exceeded its budget.
	// Recovered locally as degraded findings; never aborts Observe.
	ErrInvestigatorTimeout = errors.New("investigator timed out")

	// ErrPlanningFailure marks an empty or invalid remediation plan.
	ErrPlanningFailure = errors.New("planning failure")

	// ErrExecutionFailure marks a failed action. Recorded per action and
	// routed forward to Verify; never aborts the session.
	ErrExecutionFailure = errors.New("action execution failed")

	// ErrExternalUnavailable marks an unreachable external source. Surfaced
	// explicitly; values are never substituted.
	ErrExternalUnavailable = errors.New("external source unavailable")

	// ErrSessionNotFound marks lookups for unknown or finished sessions.
	ErrSessionNotFound = errors.New("session not found")
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}
