package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sentinelstack/responder/internal/models"
)

// Reflector weighs the evidence collected in the Observe phase and routes the
// session: proceed to planning, loop back for another pass, or give up.
type Reflector struct {
	logger               *slog.Logger
	minProceedConfidence float64
}

// NewReflector constructs a reflector. minProceedConfidence is the confidence
// below which the session either re-investigates or escalates.
func NewReflector(logger *slog.Logger, minProceedConfidence float64) *Reflector {
	if logger == nil {
		logger = slog.Default()
	}
	if minProceedConfidence <= 0 || minProceedConfidence > 1 {
		minProceedConfidence = 0.6
	}
	return &Reflector{logger: logger, minProceedConfidence: minProceedConfidence}
}

// Analyze produces a hypothesis with confidence from the cycle's findings and
// decides the route out of Orient. cyclesLeft is how many re-investigation
// loops remain before the cycle budget is spent.
func (r *Reflector) Analyze(alert models.AlertContext, findings map[string]models.InvestigationFindings, cyclesLeft int) models.ReflectorAnalysis {
	analysis := models.ReflectorAnalysis{CreatedAt: time.Now().UTC()}

	total := len(findings)
	if total == 0 {
		analysis.Decision = models.DecisionInconclusive
		analysis.Hypothesis = "no findings collected"
		return analysis
	}

	usable := 0
	failed := make([]string, 0)
	bestConfidence := 0.0
	var bestEvidence models.EvidenceItem
	var bestOwner string
	for _, name := range sortedNames(findings) {
		f := findings[name]
		if f.Status == models.FindingFailed {
			failed = append(failed, name)
			analysis.Discrepancies = append(analysis.Discrepancies,
				fmt.Sprintf("%s failed: %s", name, f.Summary))
			continue
		}
		usable++
		if top, ok := f.TopEvidence(); ok && top.Confidence > bestConfidence {
			bestConfidence = top.Confidence
			bestEvidence = top
			bestOwner = name
		}
	}

	if usable == 0 {
		r.logger.Warn("all investigators failed", slog.String("alert", alert.Name))
		analysis.Decision = models.DecisionInconclusive
		analysis.Hypothesis = "every investigator failed; no usable evidence"
		return analysis
	}

	coverage := float64(usable) / float64(total)
	analysis.Confidence = clampUnit(0.5*coverage + 0.5*bestConfidence)
	analysis.Hypothesis = hypothesisFor(alert, bestOwner, bestEvidence)

	switch {
	case analysis.Confidence >= r.minProceedConfidence:
		analysis.Decision = models.DecisionProceed
	case cyclesLeft > 0:
		analysis.Decision = models.DecisionReinvestigate
	default:
		analysis.Decision = models.DecisionInconclusive
	}

	r.logger.Info("reflection complete",
		slog.String("alert", alert.Name),
		slog.Float64("confidence", analysis.Confidence),
		slog.String("decision", string(analysis.Decision)))
	return analysis
}

func hypothesisFor(alert models.AlertContext, owner string, evidence models.EvidenceItem) string {
	service := alert.Label("service", "app", "deployment")
	if service == "" {
		service = "the affected service"
	}
	switch evidence.Kind {
	case "recent_commit":
		return fmt.Sprintf("commit %v likely regressed %s (%s)", evidence.Payload["sha"], service, alert.Category())
	case "metric_anomaly":
		return fmt.Sprintf("%s anomaly on %s beyond baseline", evidence.Source, service)
	case "restart_churn":
		return fmt.Sprintf("%s is crash looping", service)
	case "replica_degradation":
		return fmt.Sprintf("%s is running degraded replica capacity", service)
	case "log_spike":
		return fmt.Sprintf("error log surge on %s", service)
	case "runbook":
		return fmt.Sprintf("known failure mode on %s: %v", service, evidence.Payload["title"])
	default:
		if owner != "" {
			return fmt.Sprintf("%s evidence points at %s", owner, service)
		}
		return fmt.Sprintf("undetermined fault on %s", service)
	}
}

func sortedNames(findings map[string]models.InvestigationFindings) []string {
	names := make([]string, 0, len(findings))
	for name := range findings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
