package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sentinelstack/responder/internal/metrics"
	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/repo"
	"github.com/sentinelstack/responder/internal/utils"
)

// Gateway is the tool invocation surface the executor depends on.
type Gateway interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (repo.ToolResult, error)
}

// Executor runs a plan's actions in order through the tool gateway. The
// first failure stops the run; remaining actions are recorded as skipped,
// never attempted.
type Executor struct {
	logger  *slog.Logger
	gateway Gateway
}

// New constructs an executor over the given gateway.
func New(logger *slog.Logger, gateway Gateway) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger, gateway: gateway}
}

// Execute runs the plan fail-fast. The returned results cover every plan
// action exactly once. A non-nil error means at least one action failed.
func (e *Executor) Execute(ctx context.Context, plan *models.RemediationPlan) ([]models.ExecutionResult, error) {
	if plan == nil || len(plan.Actions) == 0 {
		return nil, fmt.Errorf("%w: empty plan", utils.ErrExecutionFailure)
	}

	results := make([]models.ExecutionResult, 0, len(plan.Actions))
	var failure error

	for i, action := range plan.Actions {
		if failure != nil {
			results = append(results, models.ExecutionResult{
				Action:    action,
				Outcome:   models.OutcomeSkipped,
				Error:     "skipped after earlier failure",
				Timestamp: time.Now().UTC(),
			})
			metrics.ObserveAction(string(action.Type), string(models.OutcomeSkipped))
			continue
		}

		result := e.runAction(ctx, plan, action)
		e.logger.Info("action executed",
			slog.Int("index", i),
			slog.String("type", string(action.Type)),
			slog.String("target", action.Target),
			slog.String("outcome", string(result.Outcome)))
		metrics.ObserveAction(string(action.Type), string(result.Outcome))
		results = append(results, result)

		if result.Outcome == models.OutcomeFailure {
			failure = fmt.Errorf("%w: action %d (%s on %s): %s",
				utils.ErrExecutionFailure, i, action.Type, action.Target, result.Error)
		}
	}

	return results, failure
}

func (e *Executor) runAction(ctx context.Context, plan *models.RemediationPlan, action models.RemediationAction) models.ExecutionResult {
	tool := mapActionToTool(action)
	args := prepareToolArgs(action)

	result := models.ExecutionResult{
		Action:    action,
		Tool:      tool,
		Timestamp: time.Now().UTC(),
	}

	toolResult, err := e.gateway.Invoke(ctx, tool, args)
	if err != nil {
		result.Outcome = models.OutcomeFailure
		result.Error = err.Error()
		return result
	}
	fillResponse(&result, toolResult)
	if !toolResult.OK() {
		result.Outcome = models.OutcomeFailure
		result.Error = fmt.Sprintf("tool %s reported failure", tool)
		return result
	}
	result.Outcome = models.OutcomeSuccess

	// A commit revert is a two-step remediation: open the revert PR, then
	// leave the reasoning as a PR comment for the on-call reviewer.
	if action.Type == models.ActionRevertCommit {
		if err := e.commentOnRevert(ctx, plan, action, toolResult); err != nil {
			result.Outcome = models.OutcomeFailure
			result.Error = err.Error()
		}
	}
	return result
}

func (e *Executor) commentOnRevert(ctx context.Context, plan *models.RemediationPlan, action models.RemediationAction, created repo.ToolResult) error {
	prNumber, ok := prNumberOf(created)
	if !ok {
		return fmt.Errorf("create_revert_pr returned no pr_number")
	}

	comment := action.Reason
	if comment == "" {
		comment = plan.Hypothesis
	}
	if comment == "" {
		comment = "Automated revert of a suspect commit."
	}

	followUp, err := e.gateway.Invoke(ctx, "comment_on_pr", map[string]any{
		"pr_number": prNumber,
		"comment":   comment,
	})
	if err != nil {
		return fmt.Errorf("comment_on_pr: %w", err)
	}
	if !followUp.OK() {
		return fmt.Errorf("comment_on_pr reported failure")
	}
	return nil
}

func prNumberOf(result repo.ToolResult) (int, bool) {
	if result.Structured == nil {
		return 0, false
	}
	switch n := result.Structured["pr_number"].(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

// mapActionToTool translates an action into the gateway tool that performs
// it. Restarting a pod is a delete; the scheduler recreates it.
func mapActionToTool(action models.RemediationAction) string {
	switch action.Type {
	case models.ActionRestart:
		if strings.Contains(strings.ToLower(action.Target), "pod") {
			return "delete_pod"
		}
		return "restart_deployment"
	case models.ActionScale:
		return "scale_deployment"
	case models.ActionRollback:
		return "rollback_deployment"
	case models.ActionPatch, models.ActionConfigChange:
		return "patch_resource"
	case models.ActionRevertCommit:
		return "create_revert_pr"
	case models.ActionEscalate:
		return "page_oncall"
	default:
		return "execute_action"
	}
}

func prepareToolArgs(action models.RemediationAction) map[string]any {
	namespace := "default"
	if ns, ok := action.Parameters["namespace"].(string); ok && ns != "" {
		namespace = ns
	}
	args := map[string]any{"namespace": namespace}

	switch action.Type {
	case models.ActionRestart:
		if strings.Contains(strings.ToLower(action.Target), "pod") {
			args["pod_name"] = action.Target
		} else {
			args["deployment_name"] = action.Target
		}
	case models.ActionScale:
		args["deployment_name"] = action.Target
		args["replicas"] = action.Parameters["replicas"]
	case models.ActionRollback:
		args["deployment_name"] = action.Target
		args["revision"] = action.Parameters["revision"]
	case models.ActionPatch, models.ActionConfigChange:
		args["resource_name"] = action.Target
	case models.ActionRevertCommit:
		sha, _ := action.Parameters["sha"].(string)
		args["commit_sha"] = sha
		title, _ := action.Parameters["pr_title"].(string)
		if title == "" {
			title = fmt.Sprintf("Revert commit %s", shortSHA(sha))
		}
		args["pr_title"] = title
	case models.ActionEscalate:
		args["target"] = action.Target
		args["reason"] = action.Reason
	}

	for key, val := range action.Parameters {
		if _, taken := args[key]; !taken {
			args[key] = val
		}
	}
	return args
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func fillResponse(result *models.ExecutionResult, toolResult repo.ToolResult) {
	if toolResult.Structured != nil {
		result.Payload = toolResult.Structured
		if data, err := json.Marshal(toolResult.Structured); err == nil {
			result.Response = string(data)
		}
		return
	}
	result.Response = toolResult.Text
}
