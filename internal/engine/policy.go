package engine

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sentinelstack/responder/internal/models"
)

// forcedRisk is the floor applied to actions that must always face a human:
// change reverts, rollbacks, protected targets and locked targets.
const forcedRisk = 0.9

// PolicyGate scores remediation plans deterministically. Evaluate performs
// no I/O and consults no clock; the same plan, lock set and auto-approve
// flag always produce the same decision.
type PolicyGate struct {
	baseline             map[models.ActionType]float64
	protected            []*regexp.Regexp
	autoApproveThreshold float64
	rejectCeiling        float64
}

type policyFile struct {
	BaselineRisk         map[string]float64 `yaml:"baseline_risk"`
	ProtectedResources   []string           `yaml:"protected_resources"`
	AutoApproveThreshold float64            `yaml:"auto_approve_threshold"`
	RejectCeiling        float64            `yaml:"reject_ceiling"`
}

// NewPolicyGate builds a gate from the policy file at path, falling back to
// built-in defaults for anything the file leaves unset. An empty path or
// missing file yields the default policy.
func NewPolicyGate(path string, autoApproveThreshold, rejectCeiling float64) (*PolicyGate, error) {
	gate := &PolicyGate{
		baseline: map[models.ActionType]float64{
			models.ActionEscalate:     0.05,
			models.ActionRestart:      0.30,
			models.ActionScale:        0.35,
			models.ActionPatch:        0.55,
			models.ActionConfigChange: 0.60,
			models.ActionRollback:     0.70,
			models.ActionRevertCommit: 0.80,
		},
		autoApproveThreshold: autoApproveThreshold,
		rejectCeiling:        rejectCeiling,
	}
	if gate.autoApproveThreshold <= 0 {
		gate.autoApproveThreshold = 0.4
	}
	if gate.rejectCeiling <= 0 {
		gate.rejectCeiling = 0.97
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err == nil {
			var file policyFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("parse policy: %w", err)
			}
			for name, risk := range file.BaselineRisk {
				gate.baseline[models.ActionType(name)] = risk
			}
			for _, pattern := range file.ProtectedResources {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return nil, fmt.Errorf("protected resource pattern %q: %w", pattern, err)
				}
				gate.protected = append(gate.protected, re)
			}
			if file.AutoApproveThreshold > 0 {
				gate.autoApproveThreshold = file.AutoApproveThreshold
			}
			if file.RejectCeiling > 0 {
				gate.rejectCeiling = file.RejectCeiling
			}
		}
	}

	if len(gate.protected) == 0 {
		gate.protected = []*regexp.Regexp{
			regexp.MustCompile(`(?i)^prod-db`),
			regexp.MustCompile(`(?i)payment`),
			regexp.MustCompile(`(?i)auth`),
		}
	}
	return gate, nil
}

// Evaluate scores the plan against the policy. lockedTargets is the current
// break-glass lock set, supplied by the caller so evaluation stays pure.
func (g *PolicyGate) Evaluate(plan *models.RemediationPlan, lockedTargets []string, autoApprove bool) models.PolicyDecision {
	decision := models.PolicyDecision{}
	if plan == nil || len(plan.Actions) == 0 {
		decision.Reason = "empty plan"
		return decision
	}

	locked := make(map[string]struct{}, len(lockedTargets))
	for _, target := range lockedTargets {
		locked[strings.ToLower(target)] = struct{}{}
	}

	maxRisk := 0.0
	anyForced := false
	for _, action := range plan.Actions {
		risk, forced, reason := g.scoreAction(action, locked)
		decision.ActionRisks = append(decision.ActionRisks, models.ActionRisk{
			Target: action.Target,
			Type:   action.Type,
			Risk:   risk,
			Forced: forced,
			Reason: reason,
		})
		if risk > maxRisk {
			maxRisk = risk
		}
		anyForced = anyForced || forced
	}

	// Multi-action plans carry compounding risk.
	decision.RiskScore = clampUnit(maxRisk + 0.05*float64(len(plan.Actions)-1))
	decision.Approved = decision.RiskScore <= g.rejectCeiling
	decision.RequiresHumanApproval = anyForced ||
		!(decision.RiskScore < g.autoApproveThreshold && autoApprove)

	switch {
	case !decision.Approved:
		decision.Reason = fmt.Sprintf("risk %.2f exceeds reject ceiling %.2f", decision.RiskScore, g.rejectCeiling)
	case decision.RequiresHumanApproval:
		decision.Reason = fmt.Sprintf("risk %.2f requires human approval", decision.RiskScore)
	default:
		decision.Reason = fmt.Sprintf("risk %.2f within auto-approve threshold %.2f", decision.RiskScore, g.autoApproveThreshold)
	}
	return decision
}

func (g *PolicyGate) scoreAction(action models.RemediationAction, locked map[string]struct{}) (float64, bool, string) {
	risk, ok := g.baseline[action.Type]
	if !ok {
		return forcedRisk, true, fmt.Sprintf("no baseline for action type %s", action.Type)
	}
	forced := false
	reason := ""

	switch action.Type {
	case models.ActionRevertCommit, models.ActionRollback:
		forced = true
		if risk < forcedRisk {
			risk = forcedRisk
		}
		reason = string(action.Type) + " always requires sign-off"
	}
	if g.isProtected(action.Target) {
		forced = true
		if risk < forcedRisk {
			risk = forcedRisk
		}
		reason = fmt.Sprintf("target %s matches a protected resource", action.Target)
	}
	if _, isLocked := locked[strings.ToLower(action.Target)]; isLocked {
		forced = true
		if risk < forcedRisk {
			risk = forcedRisk
		}
		reason = fmt.Sprintf("target %s is locked", action.Target)
	}
	return risk, forced, reason
}

func (g *PolicyGate) isProtected(target string) bool {
	for _, re := range g.protected {
		if re.MatchString(target) {
			return true
		}
	}
	return false
}
