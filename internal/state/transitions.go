package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/sentinelstack/responder/internal/models"
)

// transitions is the closed set of legal phase edges. The single backward
// edge is orient -> observe; every other edge moves toward a terminal phase.
var transitions = map[models.Phase][]models.Phase{
	models.PhaseObserve:          {models.PhaseOrient},
	models.PhaseOrient:           {models.PhaseObserve, models.PhaseDecide, models.PhaseEscalated},
	models.PhaseDecide:           {models.PhasePolicyGate, models.PhaseEscalated},
	models.PhasePolicyGate:       {models.PhaseAct, models.PhaseAwaitingApproval, models.PhaseClosed},
	models.PhaseAwaitingApproval: {models.PhaseAct, models.PhaseClosed},
	models.PhaseAct:              {models.PhaseVerify},
	models.PhaseVerify:           {models.PhaseClosed},
	models.PhaseClosed:           nil,
	models.PhaseEscalated:        nil,
}

// CanTransition reports whether the edge from -> to is in the lifecycle table.
func CanTransition(from, to models.Phase) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NewSession creates a session in the observe phase for the given alert.
func NewSession(alert models.AlertContext, autoApprove bool) *models.IncidentSession {
	now := time.Now().UTC()
	return &models.IncidentSession{
		ID:              uuid.NewString(),
		Phase:           models.PhaseObserve,
		Cycle:           0,
		CreatedAt:       now,
		UpdatedAt:       now,
		Alert:           alert,
		Approval:        models.ApprovalNotRequired,
		AutoApprovePlan: autoApprove,
	}
}
