package models

import "time"

// ActionOutcome is the per-action execution verdict.
type ActionOutcome string

const (
	OutcomeSuccess ActionOutcome = "success"
	OutcomeFailure ActionOutcome = "failure"
	OutcomeSkipped ActionOutcome = "skipped"
)

// ExecutionResult records the outcome of one attempted action. Results are
// append-only; the executor never edits a result after recording it.
type ExecutionResult struct {
	Action    RemediationAction `json:"action"`
	Outcome   ActionOutcome     `json:"outcome"`
	Tool      string            `json:"tool,omitempty"`
	Response  string            `json:"response,omitempty"`
	Payload   map[string]any    `json:"payload,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// MetricDelta compares one verification metric before and after remediation.
type MetricDelta struct {
	Metric      string  `json:"metric"`
	Before      float64 `json:"before"`
	After       float64 `json:"after"`
	Threshold   float64 `json:"threshold"`
	Unavailable bool    `json:"unavailable,omitempty"`
}

// VerificationResult is the Verify phase output.
type VerificationResult struct {
	Resolved  bool          `json:"resolved"`
	Deltas    []MetricDelta `json:"deltas,omitempty"`
	Summary   string        `json:"summary"`
	CheckedAt time.Time     `json:"checked_at"`
}
