package models

import "time"

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertContext is the immutable inbound alert that seeds an incident session.
// It is created once at ingestion and never mutated afterwards.
type AlertContext struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	Severity    Severity          `json:"severity"`
	StartsAt    time.Time         `json:"starts_at"`
}

// Category returns the alert's routing category label, empty when unset.
func (a AlertContext) Category() string {
	return a.Labels["category"]
}

// Label returns the first non-empty value among the given label keys.
func (a AlertContext) Label(keys ...string) string {
	for _, k := range keys {
		if v := a.Labels[k]; v != "" {
			return v
		}
	}
	return ""
}
