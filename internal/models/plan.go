package models

import (
	"fmt"
	"strings"
	"time"
)

// ActionType enumerates the remediation actions the executor understands.
type ActionType string

const (
	ActionRestart      ActionType = "restart"
	ActionScale        ActionType = "scale"
	ActionRollback     ActionType = "rollback"
	ActionConfigChange ActionType = "config_change"
	ActionPatch        ActionType = "patch"
	ActionEscalate     ActionType = "escalate"
	ActionRevertCommit ActionType = "revert_commit"
)

// KnownActionTypes lists every action type the executor can map to a tool.
var KnownActionTypes = []ActionType{
	ActionRestart, ActionScale, ActionRollback, ActionConfigChange,
	ActionPatch, ActionEscalate, ActionRevertCommit,
}

// RiskLevel buckets a plan's overall risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RemediationAction is one step of a remediation plan. Parameters are
// action-type specific and must be fully resolved before the plan leaves the
// Decide phase.
type RemediationAction struct {
	Type       ActionType     `json:"type"`
	Target     string         `json:"target"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// Validate rejects actions with an unknown type or unresolved parameters.
func (a RemediationAction) Validate() error {
	known := false
	for _, t := range KnownActionTypes {
		if a.Type == t {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if a.Target == "" {
		return fmt.Errorf("action %s has no target", a.Type)
	}
	for key, val := range a.Parameters {
		if val == nil {
			return fmt.Errorf("action %s parameter %q is unresolved", a.Type, key)
		}
		if s, ok := val.(string); ok && (s == "" || strings.Contains(s, "${")) {
			return fmt.Errorf("action %s parameter %q is unresolved", a.Type, key)
		}
	}
	return nil
}

// RemediationPlan is the Decide phase output: an ordered action sequence with
// a declared risk level and the metrics to re-check after execution.
type RemediationPlan struct {
	PlanID              string              `json:"plan_id"`
	Hypothesis          string              `json:"hypothesis"`
	Actions             []RemediationAction `json:"actions"`
	RiskLevel           RiskLevel           `json:"risk_level"`
	VerificationMetrics []string            `json:"verification_metrics,omitempty"`
	SourceRunbook       string              `json:"source_runbook,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
}

// Validate rejects empty plans and plans containing invalid actions.
func (p RemediationPlan) Validate() error {
	if len(p.Actions) == 0 {
		return fmt.Errorf("plan %s contains no actions", p.PlanID)
	}
	for i, action := range p.Actions {
		if err := action.Validate(); err != nil {
			return fmt.Errorf("plan %s action %d: %w", p.PlanID, i, err)
		}
	}
	return nil
}

// PolicyDecision is the PolicyGate phase output.
type PolicyDecision struct {
	Approved              bool         `json:"approved"`
	RequiresHumanApproval bool         `json:"requires_human_approval"`
	RiskScore             float64      `json:"risk_score"`
	Reason                string       `json:"reason"`
	ActionRisks           []ActionRisk `json:"action_risks,omitempty"`
}

// ActionRisk is the per-action scoring detail behind a policy decision.
type ActionRisk struct {
	Target string     `json:"target"`
	Type   ActionType `json:"type"`
	Risk   float64    `json:"risk"`
	Forced bool       `json:"forced"`
	Reason string     `json:"reason,omitempty"`
}
