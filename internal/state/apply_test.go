package state

import (
	"errors"
	"testing"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/utils"
)

func testAlert() models.AlertContext {
	return models.AlertContext{
		ID:       "alert-1",
		Name:     "HighLatencyP95",
		Labels:   map[string]string{"category": "high_latency", "service": "checkout"},
		Severity: models.SeverityHigh,
	}
}

func TestNewSessionStartsInObserve(t *testing.T) {
	sess := NewSession(testAlert(), false)
	if sess.Phase != models.PhaseObserve {
		t.Fatalf("expected observe, got %s", sess.Phase)
	}
	if sess.Cycle != 0 {
		t.Fatalf("expected cycle 0, got %d", sess.Cycle)
	}
	if sess.ID == "" {
		t.Fatal("expected a session id")
	}
}

func TestApplyRejectsPhaseMismatch(t *testing.T) {
	sess := NewSession(testAlert(), false)
	_, err := Apply(sess, PhaseOutput{Phase: models.PhaseOrient, Next: models.PhaseDecide})
	if !errors.Is(err, utils.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestApplyRejectsIllegalEdge(t *testing.T) {
	sess := NewSession(testAlert(), false)
	_, err := Apply(sess, PhaseOutput{Phase: models.PhaseObserve, Next: models.PhaseAct})
	if !errors.Is(err, utils.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	sess := NewSession(testAlert(), false)
	out := PhaseOutput{
		Phase: models.PhaseObserve,
		Next:  models.PhaseOrient,
		Findings: map[string]models.InvestigationFindings{
			"metrics": {Investigator: "metrics", Status: models.FindingOK},
		},
	}
	next, err := Apply(sess, out)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if sess.Phase != models.PhaseObserve || len(sess.Findings) != 0 {
		t.Fatal("input session was mutated")
	}
	if next.Phase != models.PhaseOrient || len(next.Findings) != 1 {
		t.Fatalf("unexpected result: phase=%s findings=%d", next.Phase, len(next.Findings))
	}
}

func TestApplyIncrementsCycleOnReinvestigate(t *testing.T) {
	sess := NewSession(testAlert(), false)
	sess.Phase = models.PhaseOrient
	next, err := Apply(sess, PhaseOutput{
		Phase:    models.PhaseOrient,
		Next:     models.PhaseObserve,
		Analysis: &models.ReflectorAnalysis{Decision: models.DecisionReinvestigate},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.Cycle != sess.Cycle+1 {
		t.Fatalf("expected cycle %d, got %d", sess.Cycle+1, next.Cycle)
	}
}

func TestTransitionTableIsExhaustive(t *testing.T) {
	phases := []models.Phase{
		models.PhaseObserve, models.PhaseOrient, models.PhaseDecide,
		models.PhasePolicyGate, models.PhaseAwaitingApproval,
		models.PhaseAct, models.PhaseVerify,
		models.PhaseClosed, models.PhaseEscalated,
	}
	for _, p := range phases {
		if _, ok := transitions[p]; !ok {
			t.Fatalf("phase %s missing from transition table", p)
		}
	}
	for _, terminal := range []models.Phase{models.PhaseClosed, models.PhaseEscalated} {
		if len(transitions[terminal]) != 0 {
			t.Fatalf("terminal phase %s has outgoing edges", terminal)
		}
	}
}

func TestAbort(t *testing.T) {
	sess := NewSession(testAlert(), false)
	closed, err := Abort(sess, "operator abort")
	if err != nil {
		t.Fatalf("abort: %v", err)
	}
	if closed.Phase != models.PhaseClosed || closed.CloseReason != "operator abort" {
		t.Fatalf("unexpected abort result: %+v", closed)
	}
	if _, err := Abort(closed, "again"); !errors.Is(err, utils.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on terminal abort, got %v", err)
	}
}
