package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/utils"
)

// Planner turns a confirmed hypothesis into an ordered remediation plan.
// Operator plan packs take precedence; a built-in catalog covers the common
// incident shapes. Producing no actionable plan is an error, which routes
// the session to escalation.
type Planner struct {
	logger *slog.Logger
	pack   *PlanPack
}

// NewPlanner constructs a planner with an optional plan pack.
func NewPlanner(logger *slog.Logger, pack *PlanPack) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{logger: logger, pack: pack}
}

// incidentShape is the planner's working view of the session evidence.
type incidentShape struct {
	service       string
	commitSHA     string
	replicas      int
	evidenceKinds []string
	runbookTitle  string
}

// BuildPlan derives a remediation plan from the analysis and findings.
func (p *Planner) BuildPlan(alert models.AlertContext, findings map[string]models.InvestigationFindings, analysis *models.ReflectorAnalysis) (*models.RemediationPlan, error) {
	if analysis == nil {
		return nil, fmt.Errorf("%w: no analysis to plan from", utils.ErrPlanningFailure)
	}

	shape := shapeOf(alert, findings)
	if shape.service == "" {
		return nil, fmt.Errorf("%w: alert names no service to act on", utils.ErrPlanningFailure)
	}

	plan := &models.RemediationPlan{
		PlanID:     uuid.NewString(),
		Hypothesis: analysis.Hypothesis,
		CreatedAt:  time.Now().UTC(),
	}

	if rule, ok := p.pack.Match(alert, shape.evidenceKinds); ok {
		if actions, resolved := resolveTemplates(rule.Actions, shape); resolved {
			plan.Actions = actions
			plan.RiskLevel = riskLevelFrom(rule.RiskLevel, actions)
			plan.VerificationMetrics = rule.VerificationMetrics
			plan.SourceRunbook = shape.runbookTitle
			if err := plan.Validate(); err != nil {
				return nil, fmt.Errorf("%w: pack rule %s: %v", utils.ErrPlanningFailure, rule.ID, err)
			}
			p.logger.Info("plan built from pack rule",
				slog.String("rule", rule.ID),
				slog.Int("actions", len(actions)))
			return plan, nil
		}
		p.logger.Warn("pack rule matched but placeholders unresolved", slog.String("rule", rule.ID))
	}

	actions, metrics := builtinPlan(alert, shape)
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: no catalog entry for %q with evidence %v",
			utils.ErrPlanningFailure, alert.Category(), shape.evidenceKinds)
	}

	plan.Actions = actions
	plan.RiskLevel = riskLevelFrom("", actions)
	plan.VerificationMetrics = metrics
	plan.SourceRunbook = shape.runbookTitle
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrPlanningFailure, err)
	}
	return plan, nil
}

func shapeOf(alert models.AlertContext, findings map[string]models.InvestigationFindings) incidentShape {
	shape := incidentShape{service: alert.Label("service", "app", "deployment")}
	for _, name := range sortedNames(findings) {
		f := findings[name]
		if f.Status == models.FindingFailed {
			continue
		}
		for _, ev := range f.Evidence {
			if !containsFold(shape.evidenceKinds, ev.Kind) {
				shape.evidenceKinds = append(shape.evidenceKinds, ev.Kind)
			}
			switch ev.Kind {
			case "recent_commit":
				if shape.commitSHA == "" {
					if sha, ok := ev.Payload["sha"].(string); ok {
						shape.commitSHA = sha
					}
				}
			case "workload_state":
				switch replicas := ev.Payload["replicas"].(type) {
				case int:
					shape.replicas = replicas
				case float64:
					shape.replicas = int(replicas)
				}
			case "runbook":
				if shape.runbookTitle == "" {
					if title, ok := ev.Payload["title"].(string); ok {
						shape.runbookTitle = title
					}
				}
			}
		}
	}
	return shape
}

// builtinPlan is the built-in remediation catalog, strongest signal first.
func builtinPlan(alert models.AlertContext, shape incidentShape) ([]models.RemediationAction, []string) {
	has := func(kind string) bool { return containsFold(shape.evidenceKinds, kind) }

	switch {
	case has("recent_commit") && shape.commitSHA != "":
		return []models.RemediationAction{{
			Type:       models.ActionRevertCommit,
			Target:     shape.service,
			Parameters: map[string]any{"sha": shape.commitSHA},
			Reason:     fmt.Sprintf("revert suspect commit %s", shape.commitSHA),
		}}, []string{"latency_p95_seconds", "http_error_rate"}

	case has("restart_churn"):
		return []models.RemediationAction{{
			Type:       models.ActionRollback,
			Target:     shape.service,
			Parameters: map[string]any{"revision": "previous"},
			Reason:     "roll back past the crash-looping revision",
		}}, []string{"http_error_rate"}

	case has("replica_degradation"):
		return []models.RemediationAction{{
			Type:       models.ActionRestart,
			Target:     shape.service,
			Parameters: map[string]any{"kind": "deployment"},
			Reason:     "restart to recover unready replicas",
		}}, []string{"http_error_rate"}

	case has("metric_anomaly") && strings.Contains(strings.ToLower(alert.Category()), "latency") && shape.replicas > 0:
		return []models.RemediationAction{{
			Type:       models.ActionScale,
			Target:     shape.service,
			Parameters: map[string]any{"replicas": shape.replicas + 1},
			Reason:     "add capacity to absorb the latency regression",
		}}, []string{"latency_p95_seconds"}

	case has("log_spike"):
		return []models.RemediationAction{{
			Type:       models.ActionRestart,
			Target:     shape.service,
			Parameters: map[string]any{"kind": "deployment"},
			Reason:     "restart to clear the error surge",
		}}, []string{"http_error_rate"}
	}

	return nil, nil
}

func resolveTemplates(templates []ActionTemplate, shape incidentShape) ([]models.RemediationAction, bool) {
	resolve := func(s string) string {
		s = strings.ReplaceAll(s, "${service}", shape.service)
		s = strings.ReplaceAll(s, "${commit_sha}", shape.commitSHA)
		return s
	}

	actions := make([]models.RemediationAction, 0, len(templates))
	for _, tmpl := range templates {
		action := models.RemediationAction{
			Type:   models.ActionType(tmpl.Type),
			Target: resolve(tmpl.Target),
			Reason: resolve(tmpl.Reason),
		}
		if len(tmpl.Parameters) > 0 {
			action.Parameters = make(map[string]any, len(tmpl.Parameters))
			for key, val := range tmpl.Parameters {
				if s, ok := val.(string); ok {
					val = resolve(s)
				}
				action.Parameters[key] = val
			}
		}
		if err := action.Validate(); err != nil {
			return nil, false
		}
		actions = append(actions, action)
	}
	return actions, len(actions) > 0
}

func riskLevelFrom(declared string, actions []models.RemediationAction) models.RiskLevel {
	switch strings.ToLower(declared) {
	case "low":
		return models.RiskLow
	case "medium":
		return models.RiskMedium
	case "high":
		return models.RiskHigh
	}
	level := models.RiskLow
	for _, action := range actions {
		switch action.Type {
		case models.ActionRevertCommit, models.ActionRollback:
			return models.RiskHigh
		case models.ActionConfigChange, models.ActionPatch:
			level = models.RiskMedium
		}
	}
	return level
}
