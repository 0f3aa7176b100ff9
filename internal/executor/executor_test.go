package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/repo"
	"github.com/sentinelstack/responder/internal/utils"
)

type invocation struct {
	tool string
	args map[string]any
}

type fakeGateway struct {
	calls   []invocation
	results map[string]repo.ToolResult
	errs    map[string]error
}

func (f *fakeGateway) Invoke(ctx context.Context, tool string, args map[string]any) (repo.ToolResult, error) {
	f.calls = append(f.calls, invocation{tool: tool, args: args})
	if err := f.errs[tool]; err != nil {
		return repo.ToolResult{}, err
	}
	if result, ok := f.results[tool]; ok {
		return result, nil
	}
	return repo.ToolResult{Structured: map[string]any{"status": "ok"}}, nil
}

func threeActionPlan() *models.RemediationPlan {
	return &models.RemediationPlan{
		PlanID:     "p1",
		Hypothesis: "checkout regressed",
		Actions: []models.RemediationAction{
			{Type: models.ActionScale, Target: "checkout", Parameters: map[string]any{"replicas": 4}},
			{Type: models.ActionRestart, Target: "checkout"},
			{Type: models.ActionRollback, Target: "checkout", Parameters: map[string]any{"revision": "previous"}},
		},
	}
}

func TestExecuteFailFast(t *testing.T) {
	gw := &fakeGateway{errs: map[string]error{
		"restart_deployment": fmt.Errorf("%w: gateway down", utils.ErrExternalUnavailable),
	}}
	e := New(nil, gw)

	results, err := e.Execute(context.Background(), threeActionPlan())
	if !errors.Is(err, utils.ErrExecutionFailure) {
		t.Fatalf("expected ErrExecutionFailure, got %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("every action needs a result, got %d", len(results))
	}
	if results[0].Outcome != models.OutcomeSuccess {
		t.Fatalf("first action should succeed: %+v", results[0])
	}
	if results[1].Outcome != models.OutcomeFailure {
		t.Fatalf("second action should fail: %+v", results[1])
	}
	if results[2].Outcome != models.OutcomeSkipped {
		t.Fatalf("third action must be skipped, not attempted: %+v", results[2])
	}
	for _, call := range gw.calls {
		if call.tool == "rollback_deployment" {
			t.Fatal("skipped action reached the gateway")
		}
	}
}

func TestExecuteRevertCommitTwoStep(t *testing.T) {
	gw := &fakeGateway{results: map[string]repo.ToolResult{
		"create_revert_pr": {Structured: map[string]any{"status": "ok", "pr_number": float64(42), "pr_url": "https://example.com/pr/42"}},
	}}
	e := New(nil, gw)

	plan := &models.RemediationPlan{
		PlanID:     "p1",
		Hypothesis: "commit abc123 regressed checkout",
		Actions: []models.RemediationAction{{
			Type:       models.ActionRevertCommit,
			Target:     "checkout",
			Parameters: map[string]any{"sha": "abc123def"},
			Reason:     "revert suspect commit abc123def",
		}},
	}

	results, err := e.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(results) != 1 || results[0].Outcome != models.OutcomeSuccess {
		t.Fatalf("unexpected results: %+v", results)
	}

	if len(gw.calls) != 2 {
		t.Fatalf("expected create then comment, got %d calls", len(gw.calls))
	}
	create := gw.calls[0]
	if create.tool != "create_revert_pr" || create.args["commit_sha"] != "abc123def" {
		t.Fatalf("unexpected create call: %+v", create)
	}
	comment := gw.calls[1]
	if comment.tool != "comment_on_pr" || comment.args["pr_number"] != 42 {
		t.Fatalf("unexpected comment call: %+v", comment)
	}
	if comment.args["comment"] != "revert suspect commit abc123def" {
		t.Fatalf("reasoning not carried into the comment: %+v", comment.args)
	}
}

func TestExecuteRevertFailsWithoutPRNumber(t *testing.T) {
	gw := &fakeGateway{results: map[string]repo.ToolResult{
		"create_revert_pr": {Text: "created"},
	}}
	e := New(nil, gw)

	plan := &models.RemediationPlan{
		PlanID: "p1",
		Actions: []models.RemediationAction{{
			Type:       models.ActionRevertCommit,
			Target:     "checkout",
			Parameters: map[string]any{"sha": "abc123"},
		}},
	}

	results, err := e.Execute(context.Background(), plan)
	if !errors.Is(err, utils.ErrExecutionFailure) {
		t.Fatalf("missing pr_number should fail the action, got %v", err)
	}
	if results[0].Outcome != models.OutcomeFailure {
		t.Fatalf("expected failure outcome: %+v", results[0])
	}
}

func TestExecuteToolReportedFailure(t *testing.T) {
	gw := &fakeGateway{results: map[string]repo.ToolResult{
		"scale_deployment": {Structured: map[string]any{"status": "error", "detail": "quota exceeded"}},
	}}
	e := New(nil, gw)

	plan := &models.RemediationPlan{
		PlanID: "p1",
		Actions: []models.RemediationAction{{
			Type: models.ActionScale, Target: "checkout", Parameters: map[string]any{"replicas": 10},
		}},
	}

	results, err := e.Execute(context.Background(), plan)
	if !errors.Is(err, utils.ErrExecutionFailure) {
		t.Fatalf("expected ErrExecutionFailure, got %v", err)
	}
	if results[0].Outcome != models.OutcomeFailure {
		t.Fatalf("expected failure: %+v", results[0])
	}
}

func TestActionToolMapping(t *testing.T) {
	cases := []struct {
		action models.RemediationAction
		tool   string
	}{
		{models.RemediationAction{Type: models.ActionRestart, Target: "checkout-pod-abc"}, "delete_pod"},
		{models.RemediationAction{Type: models.ActionRestart, Target: "checkout"}, "restart_deployment"},
		{models.RemediationAction{Type: models.ActionScale, Target: "checkout"}, "scale_deployment"},
		{models.RemediationAction{Type: models.ActionRollback, Target: "checkout"}, "rollback_deployment"},
		{models.RemediationAction{Type: models.ActionPatch, Target: "checkout"}, "patch_resource"},
		{models.RemediationAction{Type: models.ActionConfigChange, Target: "checkout"}, "patch_resource"},
		{models.RemediationAction{Type: models.ActionRevertCommit, Target: "checkout"}, "create_revert_pr"},
		{models.RemediationAction{Type: models.ActionEscalate, Target: "oncall"}, "page_oncall"},
	}
	for _, tc := range cases {
		if got := mapActionToTool(tc.action); got != tc.tool {
			t.Errorf("%s on %s: expected %s, got %s", tc.action.Type, tc.action.Target, tc.tool, got)
		}
	}
}
