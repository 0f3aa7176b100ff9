package engine

import (
	"reflect"
	"testing"

	"github.com/sentinelstack/responder/internal/models"
)

func newTestGate(t *testing.T) *PolicyGate {
	t.Helper()
	gate, err := NewPolicyGate("", 0.4, 0.97)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	return gate
}

func restartPlan(target string) *models.RemediationPlan {
	return &models.RemediationPlan{
		PlanID: "p1",
		Actions: []models.RemediationAction{{
			Type:       models.ActionRestart,
			Target:     target,
			Parameters: map[string]any{"kind": "deployment"},
		}},
	}
}

func TestPolicyGateDeterministic(t *testing.T) {
	gate := newTestGate(t)
	plan := &models.RemediationPlan{
		PlanID: "p1",
		Actions: []models.RemediationAction{
			{Type: models.ActionRevertCommit, Target: "checkout", Parameters: map[string]any{"sha": "abc"}},
			{Type: models.ActionRestart, Target: "checkout"},
		},
	}
	locks := []string{"billing"}

	first := gate.Evaluate(plan, locks, false)
	for i := 0; i < 5; i++ {
		if got := gate.Evaluate(plan, locks, false); !reflect.DeepEqual(first, got) {
			t.Fatalf("evaluation not deterministic: %+v vs %+v", first, got)
		}
	}
}

func TestPolicyGateAutoApprovesLowRisk(t *testing.T) {
	gate := newTestGate(t)

	decision := gate.Evaluate(restartPlan("checkout"), nil, true)
	if !decision.Approved || decision.RequiresHumanApproval {
		t.Fatalf("low-risk restart with auto-approve should pass untouched: %+v", decision)
	}

	// Same plan without the auto-approve opt-in still needs a human.
	decision = gate.Evaluate(restartPlan("checkout"), nil, false)
	if !decision.Approved || !decision.RequiresHumanApproval {
		t.Fatalf("without auto-approve a human is required: %+v", decision)
	}
}

func TestPolicyGateForcesRevertToHuman(t *testing.T) {
	gate := newTestGate(t)
	plan := &models.RemediationPlan{
		PlanID: "p1",
		Actions: []models.RemediationAction{{
			Type:       models.ActionRevertCommit,
			Target:     "checkout",
			Parameters: map[string]any{"sha": "abc123"},
		}},
	}

	decision := gate.Evaluate(plan, nil, true)
	if !decision.RequiresHumanApproval {
		t.Fatalf("revert_commit must always face a human: %+v", decision)
	}
	if !decision.Approved {
		t.Fatalf("revert alone should not exceed the ceiling: %+v", decision)
	}
	if len(decision.ActionRisks) != 1 || !decision.ActionRisks[0].Forced {
		t.Fatalf("expected forced action risk: %+v", decision.ActionRisks)
	}
	if decision.ActionRisks[0].Risk < forcedRisk {
		t.Fatalf("revert risk should be floored at %.2f: %+v", forcedRisk, decision.ActionRisks[0])
	}
}

func TestPolicyGateRollbackRiskFloored(t *testing.T) {
	gate := newTestGate(t)
	plan := &models.RemediationPlan{
		PlanID: "p1",
		Actions: []models.RemediationAction{{
			Type:       models.ActionRollback,
			Target:     "checkout",
			Parameters: map[string]any{"revision": "previous"},
		}},
	}

	decision := gate.Evaluate(plan, nil, true)
	if decision.RiskScore < forcedRisk {
		t.Fatalf("rollback risk should be floored at %.2f: %+v", forcedRisk, decision)
	}
	if !decision.RequiresHumanApproval {
		t.Fatalf("rollback must always face a human: %+v", decision)
	}
}

func TestPolicyGateProtectedTarget(t *testing.T) {
	gate := newTestGate(t)

	decision := gate.Evaluate(restartPlan("payment-gateway"), nil, true)
	if !decision.RequiresHumanApproval {
		t.Fatalf("protected target must require approval: %+v", decision)
	}
	if decision.RiskScore < forcedRisk {
		t.Fatalf("protected target risk should be floored at %.2f: %+v", forcedRisk, decision)
	}
}

func TestPolicyGateLockedTarget(t *testing.T) {
	gate := newTestGate(t)

	decision := gate.Evaluate(restartPlan("checkout"), []string{"Checkout"}, true)
	if !decision.RequiresHumanApproval {
		t.Fatalf("locked target must require approval: %+v", decision)
	}
}

func TestPolicyGateRejectsAboveCeiling(t *testing.T) {
	gate := newTestGate(t)
	plan := &models.RemediationPlan{
		PlanID: "p1",
		Actions: []models.RemediationAction{
			{Type: models.ActionConfigChange, Target: "prod-db-primary", Parameters: map[string]any{"key": "max_conns"}},
			{Type: models.ActionRollback, Target: "prod-db-primary", Parameters: map[string]any{"revision": "previous"}},
			{Type: models.ActionRestart, Target: "prod-db-primary"},
		},
	}

	decision := gate.Evaluate(plan, nil, false)
	if decision.Approved {
		t.Fatalf("stacked high-risk actions on a protected target must be rejected: %+v", decision)
	}
}

func TestPolicyGateUnknownActionForced(t *testing.T) {
	gate := newTestGate(t)
	plan := &models.RemediationPlan{
		PlanID:  "p1",
		Actions: []models.RemediationAction{{Type: models.ActionType("drop_table"), Target: "checkout"}},
	}

	decision := gate.Evaluate(plan, nil, true)
	if !decision.RequiresHumanApproval {
		t.Fatalf("unknown action types must never auto-approve: %+v", decision)
	}
}
