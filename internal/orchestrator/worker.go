package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelstack/responder/internal/metrics"
	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/state"
)

type approvalResponse struct {
	approved bool
	approver string
	timedOut bool
}

// worker is the per-session actor. All lifecycle work for one session runs
// on its goroutine; approval and abort are the only external inputs.
type worker struct {
	sess    *models.IncidentSession
	abortCh chan string
	done    chan struct{}

	mu         sync.Mutex
	approvalCh chan approvalResponse
	due        *time.Time

	// golden-signal reading captured just before Act, compared by Verify.
	baseline *models.GoldenSnapshot
}

// armApproval parks the worker: from here until takeApproval, an approval
// signal can reach it. The channel is buffered so resolvers never block.
func (w *worker) armApproval(due *time.Time) chan approvalResponse {
	ch := make(chan approvalResponse, 1)
	w.mu.Lock()
	w.approvalCh = ch
	w.due = due
	w.mu.Unlock()
	return ch
}

// takeApproval claims the pending approval channel, if any. Exactly one
// caller wins; everyone else sees nil.
func (w *worker) takeApproval() chan approvalResponse {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := w.approvalCh
	w.approvalCh = nil
	w.due = nil
	return ch
}

func (w *worker) approvalDue() *time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.due
}

func (o *Orchestrator) run(w *worker) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		delete(o.workers, w.sess.ID)
		o.mu.Unlock()
		close(w.done)
	}()

	ctx := o.rootCtx
	sess := w.sess
	started := time.Now()

	for !sess.Phase.Terminal() {
		select {
		case reason := <-w.abortCh:
			closed, err := state.Abort(sess, reason)
			if err != nil {
				o.logger.Error("abort failed", slog.String("session", sess.ID), slog.Any("error", err))
				return
			}
			sess = closed
			o.persist(ctx, sess, nil)
			continue
		case <-ctx.Done():
			// Shutdown: the persisted snapshot lets Resume pick this up.
			return
		default:
		}

		phaseStart := time.Now()
		out, err := o.step(ctx, w, sess)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.logger.Error("phase failed",
				slog.String("session", sess.ID),
				slog.String("phase", string(sess.Phase)),
				slog.Any("error", err))
			closed, abortErr := state.Abort(sess, fmt.Sprintf("%s phase failed: %v", sess.Phase, err))
			if abortErr != nil {
				return
			}
			sess = closed
			o.persist(ctx, sess, nil)
			continue
		}

		next, err := state.Apply(sess, out)
		if err != nil {
			o.logger.Error("illegal transition",
				slog.String("session", sess.ID), slog.Any("error", err))
			closed, abortErr := state.Abort(sess, "internal transition error")
			if abortErr != nil {
				return
			}
			next = closed
		}
		o.persist(ctx, next, out.Thoughts)
		metrics.ObservePhase(string(out.Phase), time.Since(phaseStart))
		sess = next
		w.sess = sess
	}

	outcome := metrics.OutcomeClosed
	if sess.Phase == models.PhaseEscalated {
		outcome = metrics.OutcomeEscalated
	}
	metrics.ObserveSession(outcome)
	o.latency.Observe(time.Since(started))
	o.logger.Info("session finished",
		slog.String("session", sess.ID),
		slog.String("phase", string(sess.Phase)),
		slog.String("reason", sess.CloseReason),
		slog.Int("cycles", sess.Cycle))
	o.archive(ctx, sess)
}

func (o *Orchestrator) persist(ctx context.Context, sess *models.IncidentSession, thoughts []models.ThoughtEntry) {
	if len(thoughts) > 0 {
		if err := o.deps.Hot.AppendTrace(ctx, sess.ID, thoughts...); err != nil {
			o.logger.Warn("trace append failed", slog.String("session", sess.ID), slog.Any("error", err))
		}
	}
	if err := o.deps.Hot.SaveSession(ctx, sess); err != nil {
		o.logger.Error("session persist failed", slog.String("session", sess.ID), slog.Any("error", err))
	}
}

func (o *Orchestrator) step(ctx context.Context, w *worker, sess *models.IncidentSession) (state.PhaseOutput, error) {
	switch sess.Phase {
	case models.PhaseObserve:
		return o.observe(ctx, sess)
	case models.PhaseOrient:
		return o.orient(sess)
	case models.PhaseDecide:
		return o.decide(sess)
	case models.PhasePolicyGate:
		return o.policyGate(ctx, sess)
	case models.PhaseAwaitingApproval:
		return o.awaitApproval(ctx, w, sess)
	case models.PhaseAct:
		return o.act(ctx, w, sess)
	case models.PhaseVerify:
		return o.verify(ctx, w, sess)
	default:
		return state.PhaseOutput{}, fmt.Errorf("no handler for phase %s", sess.Phase)
	}
}

func (o *Orchestrator) observe(ctx context.Context, sess *models.IncidentSession) (state.PhaseOutput, error) {
	findings, err := o.deps.Investigators.Run(ctx, sess.Alert, sess.Findings, sess.Cycle)
	if err != nil {
		return state.PhaseOutput{}, err
	}
	return state.PhaseOutput{
		Phase:    models.PhaseObserve,
		Next:     models.PhaseOrient,
		Findings: findings,
		Thoughts: []models.ThoughtEntry{thought("observer",
			fmt.Sprintf("cycle %d: %d investigators reported", sess.Cycle, len(findings)))},
	}, nil
}

func (o *Orchestrator) orient(sess *models.IncidentSession) (state.PhaseOutput, error) {
	cyclesLeft := o.cfg.MaxCycles - sess.Cycle
	analysis := o.deps.Reflector.Analyze(sess.Alert, sess.Findings, cyclesLeft)

	out := state.PhaseOutput{
		Phase:    models.PhaseOrient,
		Analysis: &analysis,
		Thoughts: []models.ThoughtEntry{thought("reflector",
			fmt.Sprintf("%s (confidence %.2f): %s", analysis.Decision, analysis.Confidence, analysis.Hypothesis))},
	}
	switch analysis.Decision {
	case models.DecisionProceed:
		out.Next = models.PhaseDecide
	case models.DecisionReinvestigate:
		out.Next = models.PhaseObserve
	default:
		out.Next = models.PhaseEscalated
		out.CloseReason = "investigation inconclusive after " + fmt.Sprint(sess.Cycle) + " cycles"
	}
	return out, nil
}

func (o *Orchestrator) decide(sess *models.IncidentSession) (state.PhaseOutput, error) {
	plan, err := o.deps.Planner.BuildPlan(sess.Alert, sess.Findings, sess.Analysis)
	if err != nil {
		return state.PhaseOutput{
			Phase:       models.PhaseDecide,
			Next:        models.PhaseEscalated,
			CloseReason: err.Error(),
			Thoughts:    []models.ThoughtEntry{thought("planner", "no actionable plan: "+err.Error())},
		}, nil
	}
	return state.PhaseOutput{
		Phase: models.PhaseDecide,
		Next:  models.PhasePolicyGate,
		Plan:  plan,
		Thoughts: []models.ThoughtEntry{thought("planner",
			fmt.Sprintf("plan %s: %d actions, risk %s", plan.PlanID, len(plan.Actions), plan.RiskLevel))},
	}, nil
}

func (o *Orchestrator) policyGate(ctx context.Context, sess *models.IncidentSession) (state.PhaseOutput, error) {
	locks, err := o.deps.Hot.LockedTargets(ctx)
	if err != nil {
		o.logger.Warn("lock set unavailable, gating without it", slog.Any("error", err))
	}
	decision := o.deps.Gate.Evaluate(sess.Plan, locks, sess.AutoApprovePlan)

	out := state.PhaseOutput{
		Phase: models.PhasePolicyGate,
		Gate:  &decision,
		Thoughts: []models.ThoughtEntry{thought("policy_gate",
			fmt.Sprintf("risk %.2f: %s", decision.RiskScore, decision.Reason))},
	}
	switch {
	case !decision.Approved:
		out.Next = models.PhaseClosed
		out.Approval = models.ApprovalRejected
		out.CloseReason = "plan rejected by policy: " + decision.Reason
		metrics.ObserveApproval("policy_rejected")
	case decision.RequiresHumanApproval:
		out.Next = models.PhaseAwaitingApproval
		out.Approval = models.ApprovalPending
		if o.cfg.ApprovalTimeout > 0 {
			due := time.Now().Add(o.cfg.ApprovalTimeout)
			out.ApprovalDue = &due
		}
	default:
		out.Next = models.PhaseAct
		out.Approval = models.ApprovalNotRequired
		metrics.ObserveApproval("auto")
	}
	return out, nil
}

func (o *Orchestrator) awaitApproval(ctx context.Context, w *worker, sess *models.IncidentSession) (state.PhaseOutput, error) {
	ch := w.armApproval(sess.ApprovalDue)
	defer w.takeApproval()

	var timeoutCh <-chan time.Time
	if sess.ApprovalDue != nil {
		wait := time.Until(*sess.ApprovalDue)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	out := state.PhaseOutput{Phase: models.PhaseAwaitingApproval}
	select {
	case resp := <-ch:
		if resp.timedOut {
			out.Next = models.PhaseClosed
			out.Approval = models.ApprovalRejected
			out.CloseReason = "approval window expired"
			out.Thoughts = []models.ThoughtEntry{thought("policy_gate", "approval window expired")}
			metrics.ObserveApproval("expired")
		} else if resp.approved {
			out.Next = models.PhaseAct
			out.Approval = models.ApprovalApproved
			out.Thoughts = []models.ThoughtEntry{thought("policy_gate", "plan approved by "+approverName(resp))}
			metrics.ObserveApproval("approved")
		} else {
			out.Next = models.PhaseClosed
			out.Approval = models.ApprovalRejected
			out.CloseReason = "plan rejected by " + approverName(resp)
			out.Thoughts = []models.ThoughtEntry{thought("policy_gate", "plan rejected by "+approverName(resp))}
			metrics.ObserveApproval("rejected")
		}
	case <-timeoutCh:
		out.Next = models.PhaseClosed
		out.Approval = models.ApprovalRejected
		out.CloseReason = "approval window expired"
		out.Thoughts = []models.ThoughtEntry{thought("policy_gate", "approval window expired")}
		metrics.ObserveApproval("expired")
	case reason := <-w.abortCh:
		out.Next = models.PhaseClosed
		out.Approval = models.ApprovalRejected
		out.CloseReason = reason
	case <-ctx.Done():
		return state.PhaseOutput{}, ctx.Err()
	}
	return out, nil
}

func (o *Orchestrator) act(ctx context.Context, w *worker, sess *models.IncidentSession) (state.PhaseOutput, error) {
	service := sess.Alert.Label("service", "app", "deployment")
	baseline, err := o.deps.Signals.GoldenSnapshot(ctx, service)
	if err != nil {
		o.logger.Warn("baseline snapshot unavailable before acting",
			slog.String("session", sess.ID), slog.Any("error", err))
		baseline = nil
	}
	w.baseline = baseline

	results, execErr := o.deps.Executor.Execute(ctx, sess.Plan)
	note := fmt.Sprintf("executed %d actions", len(results))
	if execErr != nil {
		note = "execution failed: " + execErr.Error()
	}
	return state.PhaseOutput{
		Phase:      models.PhaseAct,
		Next:       models.PhaseVerify,
		Executions: results,
		Thoughts:   []models.ThoughtEntry{thought("executor", note)},
	}, nil
}

func (o *Orchestrator) verify(ctx context.Context, w *worker, sess *models.IncidentSession) (state.PhaseOutput, error) {
	result := o.deps.Verifier.Verify(ctx, sess.Alert, sess.Plan, w.baseline)

	reason := "closed unresolved: " + result.Summary
	if result.Resolved {
		reason = "remediation verified"
	}
	return state.PhaseOutput{
		Phase:        models.PhaseVerify,
		Next:         models.PhaseClosed,
		Verification: result,
		CloseReason:  reason,
		Thoughts:     []models.ThoughtEntry{thought("verifier", result.Summary)},
	}, nil
}

func thought(actor, text string) models.ThoughtEntry {
	return models.ThoughtEntry{Actor: actor, Timestamp: time.Now().UTC(), Text: text}
}

func approverName(resp approvalResponse) string {
	if resp.approver != "" {
		return resp.approver
	}
	return "operator"
}
