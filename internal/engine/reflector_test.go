package engine

import (
	"testing"

	"github.com/sentinelstack/responder/internal/models"
)

func highLatencyAlert() models.AlertContext {
	return models.AlertContext{
		ID:       "a1",
		Name:     "HighLatencyP95",
		Labels:   map[string]string{"category": "high_latency", "service": "checkout"},
		Severity: models.SeverityHigh,
	}
}

func okFindings(name, kind string, confidence float64) models.InvestigationFindings {
	return models.InvestigationFindings{
		Investigator: name,
		Status:       models.FindingOK,
		Evidence: []models.EvidenceItem{{
			Kind:       kind,
			Payload:    map[string]any{"sha": "abc123"},
			Confidence: confidence,
		}},
	}
}

func failedFindings(name string) models.InvestigationFindings {
	return models.InvestigationFindings{
		Investigator: name,
		Status:       models.FindingFailed,
		Summary:      "source unavailable",
	}
}

func TestReflectorProceedsOnStrongEvidence(t *testing.T) {
	r := NewReflector(nil, 0.6)
	findings := map[string]models.InvestigationFindings{
		"metrics":         okFindings("metrics", "metric_anomaly", 0.7),
		"version_control": okFindings("version_control", "recent_commit", 0.85),
	}

	analysis := r.Analyze(highLatencyAlert(), findings, 2)
	if analysis.Decision != models.DecisionProceed {
		t.Fatalf("expected proceed, got %s (confidence %.2f)", analysis.Decision, analysis.Confidence)
	}
	if analysis.Hypothesis == "" {
		t.Fatal("expected a hypothesis")
	}
}

func TestReflectorReinvestigatesWhenUnsure(t *testing.T) {
	r := NewReflector(nil, 0.6)
	findings := map[string]models.InvestigationFindings{
		"metrics": okFindings("metrics", "metric_anomaly", 0.3),
		"logs":    failedFindings("logs"),
	}

	analysis := r.Analyze(highLatencyAlert(), findings, 1)
	if analysis.Decision != models.DecisionReinvestigate {
		t.Fatalf("expected re_investigate, got %s (confidence %.2f)", analysis.Decision, analysis.Confidence)
	}
	if len(analysis.Discrepancies) != 1 {
		t.Fatalf("failed investigator should be recorded: %+v", analysis.Discrepancies)
	}
}

func TestReflectorInconclusiveWhenBudgetSpent(t *testing.T) {
	r := NewReflector(nil, 0.6)
	findings := map[string]models.InvestigationFindings{
		"metrics": okFindings("metrics", "metric_anomaly", 0.3),
		"logs":    failedFindings("logs"),
	}

	analysis := r.Analyze(highLatencyAlert(), findings, 0)
	if analysis.Decision != models.DecisionInconclusive {
		t.Fatalf("expected inconclusive, got %s", analysis.Decision)
	}
}

func TestReflectorInconclusiveWhenAllFailed(t *testing.T) {
	r := NewReflector(nil, 0.6)
	findings := map[string]models.InvestigationFindings{
		"metrics": failedFindings("metrics"),
		"logs":    failedFindings("logs"),
	}

	analysis := r.Analyze(highLatencyAlert(), findings, 2)
	if analysis.Decision != models.DecisionInconclusive {
		t.Fatalf("expected inconclusive, got %s", analysis.Decision)
	}
	if analysis.Confidence != 0 {
		t.Fatalf("no usable evidence means zero confidence, got %.2f", analysis.Confidence)
	}
}
