package investigators

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelstack/responder/internal/models"
)

// InfraInvestigator inspects the workload's runtime shape: replica health,
// restart churn and recent events.
type InfraInvestigator struct {
	signals SignalSource
}

// NewInfraInvestigator constructs the infrastructure investigator.
func NewInfraInvestigator(signals SignalSource) *InfraInvestigator {
	return &InfraInvestigator{signals: signals}
}

func (i *InfraInvestigator) Name() string { return "infrastructure" }

// Investigate reads live workload state; earlier cycles' findings do not
// change what it looks at, so prior goes unused here.
func (i *InfraInvestigator) Investigate(ctx context.Context, alert models.AlertContext, prior map[string]models.InvestigationFindings, cycle int) (models.InvestigationFindings, error) {
	service := serviceOf(alert)

	findings := models.InvestigationFindings{
		Investigator: i.Name(),
		Cycle:        cycle,
		CollectedAt:  time.Now().UTC(),
	}

	workload, err := i.signals.FetchWorkloadState(ctx, service)
	if err != nil {
		return findings, err
	}

	findings.Evidence = append(findings.Evidence, models.EvidenceItem{
		Kind:   "workload_state",
		Source: workload.Namespace,
		Payload: map[string]any{
			"name":           workload.Name,
			"ready_replicas": workload.ReadyReplicas,
			"replicas":       workload.Replicas,
			"restart_count":  workload.RestartCount,
			"last_event":     workload.LastEvent,
		},
		Confidence: 0.5,
	})

	unhealthy := workload.Replicas > 0 && workload.ReadyReplicas < workload.Replicas
	if unhealthy {
		findings.Evidence = append(findings.Evidence, models.EvidenceItem{
			Kind:   "replica_degradation",
			Source: workload.Name,
			Payload: map[string]any{
				"ready": workload.ReadyReplicas,
				"want":  workload.Replicas,
			},
			Confidence: 0.75,
		})
	}
	if workload.RestartCount >= 3 {
		findings.Evidence = append(findings.Evidence, models.EvidenceItem{
			Kind:   "restart_churn",
			Source: workload.Name,
			Payload: map[string]any{
				"restart_count": workload.RestartCount,
				"last_event":    workload.LastEvent,
			},
			Confidence: 0.8,
		})
	}

	findings.Status = models.FindingOK
	switch {
	case workload.RestartCount >= 3:
		findings.Summary = fmt.Sprintf("%s restarting repeatedly (%d restarts)", workload.Name, workload.RestartCount)
	case unhealthy:
		findings.Summary = fmt.Sprintf("%s degraded: %d/%d replicas ready", workload.Name, workload.ReadyReplicas, workload.Replicas)
	default:
		findings.Summary = fmt.Sprintf("%s healthy: %d/%d replicas ready", workload.Name, workload.ReadyReplicas, workload.Replicas)
	}
	return findings, nil
}
