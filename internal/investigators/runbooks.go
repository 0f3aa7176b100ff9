package investigators

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelstack/responder/internal/models"
)

// RunbookInvestigator surfaces curated remediation guides matching the
// alert category so the planner can cite them.
type RunbookInvestigator struct {
	index RunbookIndex
}

// NewRunbookInvestigator constructs the knowledge-base investigator.
func NewRunbookInvestigator(index RunbookIndex) *RunbookInvestigator {
	return &RunbookInvestigator{index: index}
}

func (r *RunbookInvestigator) Name() string { return "runbooks" }

func (r *RunbookInvestigator) Investigate(ctx context.Context, alert models.AlertContext, prior map[string]models.InvestigationFindings, cycle int) (models.InvestigationFindings, error) {
	findings := models.InvestigationFindings{
		Investigator: r.Name(),
		Cycle:        cycle,
		CollectedAt:  time.Now().UTC(),
	}

	category := alert.Category()
	// Restart churn found in an earlier cycle pins the failure mode better
	// than a generic alert category.
	if category != "crash_loop" && priorHasKind(prior, "restart_churn") {
		category = "crash_loop"
	}

	runbooks, err := r.index.Search(ctx, category, serviceOf(alert), 3)
	if err != nil {
		return findings, err
	}

	for _, rb := range runbooks {
		findings.Evidence = append(findings.Evidence, models.EvidenceItem{
			Kind:   "runbook",
			Source: rb.ID,
			Payload: map[string]any{
				"title": rb.Title,
				"url":   rb.URL,
				"steps": rb.Steps,
			},
			Confidence: clamp(rb.Score, 0.2, 0.9),
		})
	}

	findings.Status = models.FindingOK
	if len(runbooks) == 0 {
		findings.Status = models.FindingPartial
		findings.Summary = "no runbooks matched the alert category"
	} else {
		findings.Summary = fmt.Sprintf("%d runbooks matched, best: %s", len(runbooks), runbooks[0].Title)
	}
	return findings, nil
}
