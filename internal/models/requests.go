package models

import "time"

// AlertPayload is the inbound alert-ingestion request body.
type AlertPayload struct {
	Name        string            `json:"name"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	Severity    Severity          `json:"severity"`
	StartsAt    time.Time         `json:"starts_at"`
	AutoApprove bool              `json:"auto_approve_plan"`
}

// ApprovalSignal is the out-of-band approval request body.
type ApprovalSignal struct {
	Approved bool   `json:"approved"`
	Approver string `json:"approver,omitempty"`
}

// SessionSummary is the list-view projection of a session.
type SessionSummary struct {
	ID              string    `json:"id"`
	AlertName       string    `json:"alert_name"`
	Severity        Severity  `json:"severity"`
	Phase           Phase     `json:"phase"`
	Cycle           int       `json:"cycle"`
	PendingApproval bool      `json:"pending_approval"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Summary projects a session into its list view.
func (s *IncidentSession) Summary() SessionSummary {
	return SessionSummary{
		ID:              s.ID,
		AlertName:       s.Alert.Name,
		Severity:        s.Alert.Severity,
		Phase:           s.Phase,
		Cycle:           s.Cycle,
		PendingApproval: s.Phase == PhaseAwaitingApproval,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// GoldenSnapshot is the current golden-signal reading passed through from the
// external metrics source. The core never synthesizes these values.
type GoldenSnapshot struct {
	CPUUsagePercent float64   `json:"cpu_usage_percent"`
	ErrorRate       float64   `json:"http_error_rate"`
	LatencyP95      float64   `json:"latency_p95_seconds"`
	Timestamp       time.Time `json:"timestamp"`
	Source          string    `json:"source"`
}
