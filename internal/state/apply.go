package state

import (
	"fmt"
	"time"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/utils"
)

// PhaseOutput is what a phase handler hands back to the orchestrator. Phase
// names the handler that produced it; Next is the proposed edge. Only the
// payload fields belonging to Phase are merged into the session.
type PhaseOutput struct {
	Phase models.Phase
	Next  models.Phase

	Findings     map[string]models.InvestigationFindings
	Analysis     *models.ReflectorAnalysis
	Plan         *models.RemediationPlan
	Gate         *models.PolicyDecision
	Approval     models.ApprovalState
	ApprovalDue  *time.Time
	Executions   []models.ExecutionResult
	Verification *models.VerificationResult
	Thoughts     []models.ThoughtEntry
	CloseReason  string
}

// Apply validates a phase output against the session and folds it in,
// returning a new session copy. The input session is never mutated.
func Apply(sess *models.IncidentSession, out PhaseOutput) (*models.IncidentSession, error) {
	if sess == nil {
		return nil, fmt.Errorf("apply: nil session")
	}
	if sess.Phase != out.Phase {
		return nil, fmt.Errorf("%w: output for %s but session is in %s",
			utils.ErrInvalidTransition, out.Phase, sess.Phase)
	}
	if !CanTransition(out.Phase, out.Next) {
		return nil, fmt.Errorf("%w: %s -> %s", utils.ErrInvalidTransition, out.Phase, out.Next)
	}

	next := sess.Clone()
	next.AppendThought(out.Thoughts...)

	switch out.Phase {
	case models.PhaseObserve:
		if next.Findings == nil {
			next.Findings = make(map[string]models.InvestigationFindings, len(out.Findings))
		}
		for name, f := range out.Findings {
			next.Findings[name] = f
		}
	case models.PhaseOrient:
		next.Analysis = out.Analysis
	case models.PhaseDecide:
		next.Plan = out.Plan
	case models.PhasePolicyGate:
		next.Gate = out.Gate
		if out.Approval != "" {
			next.Approval = out.Approval
		}
		next.ApprovalDue = out.ApprovalDue
	case models.PhaseAwaitingApproval:
		if out.Approval != "" {
			next.Approval = out.Approval
		}
		next.ApprovalDue = nil
	case models.PhaseAct:
		next.Executions = append(next.Executions, out.Executions...)
	case models.PhaseVerify:
		next.Verification = out.Verification
	}

	if out.CloseReason != "" {
		next.CloseReason = out.CloseReason
	}
	if out.Phase == models.PhaseOrient && out.Next == models.PhaseObserve {
		next.Cycle++
	}
	next.Phase = out.Next
	next.UpdatedAt = time.Now().UTC()
	return next, nil
}

// Abort moves a non-terminal session straight to closed with the given
// reason. Terminal sessions are rejected.
func Abort(sess *models.IncidentSession, reason string) (*models.IncidentSession, error) {
	if sess == nil {
		return nil, fmt.Errorf("abort: nil session")
	}
	if sess.Phase.Terminal() {
		return nil, fmt.Errorf("%w: session already %s", utils.ErrInvalidTransition, sess.Phase)
	}
	next := sess.Clone()
	next.Phase = models.PhaseClosed
	next.CloseReason = reason
	next.UpdatedAt = time.Now().UTC()
	return next, nil
}
