package investigators

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelstack/responder/internal/models"
)

// VersionControlInvestigator correlates the incident with recent commits to
// the affected service. A commit landing shortly before the alert window is
// the strongest single signal the planner can act on.
type VersionControlInvestigator struct {
	signals SignalSource
}

// NewVersionControlInvestigator constructs the version-control investigator.
func NewVersionControlInvestigator(signals SignalSource) *VersionControlInvestigator {
	return &VersionControlInvestigator{signals: signals}
}

func (v *VersionControlInvestigator) Name() string { return "version_control" }

func (v *VersionControlInvestigator) Investigate(ctx context.Context, alert models.AlertContext, prior map[string]models.InvestigationFindings, cycle int) (models.InvestigationFindings, error) {
	service := serviceOf(alert)
	start, _ := window(alert)
	since := start.Add(-time.Hour)
	if priorLacksKind(prior, v.Name(), "recent_commit") {
		since = since.Add(-6 * time.Hour)
	}

	findings := models.InvestigationFindings{
		Investigator: v.Name(),
		Cycle:        cycle,
		CollectedAt:  time.Now().UTC(),
	}

	commits, err := v.signals.FetchRecentCommits(ctx, service, since)
	if err != nil {
		return findings, err
	}

	for idx, commit := range commits {
		confidence := 0.6
		if !commit.Timestamp.IsZero() && !alert.StartsAt.IsZero() {
			lead := alert.StartsAt.Sub(commit.Timestamp)
			if lead > 0 && lead < time.Hour {
				confidence = 0.85
			}
		} else if idx == 0 {
			// Most recent commit stays the prime suspect when timestamps
			// are missing.
			confidence = 0.7
		}
		findings.Evidence = append(findings.Evidence, models.EvidenceItem{
			Kind:   "recent_commit",
			Source: service,
			Payload: map[string]any{
				"sha":       commit.SHA,
				"author":    commit.Author,
				"message":   commit.Message,
				"timestamp": commit.Timestamp.Format(time.RFC3339),
			},
			Confidence: confidence,
		})
	}

	findings.Status = models.FindingOK
	if len(commits) == 0 {
		findings.Summary = "no recent commits to the service"
	} else {
		findings.Summary = fmt.Sprintf("%d recent commits, latest %s", len(commits), commits[0].SHA)
	}
	return findings, nil
}
