package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelstack/responder/internal/config"
	"github.com/sentinelstack/responder/internal/engine"
	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/state"
	"github.com/sentinelstack/responder/internal/store"
	"github.com/sentinelstack/responder/internal/utils"
)

// InvestigatorPool fans an alert out across investigators. prior carries the
// findings accumulated over earlier cycles into the next pass.
type InvestigatorPool interface {
	Run(ctx context.Context, alert models.AlertContext, prior map[string]models.InvestigationFindings, cycle int) (map[string]models.InvestigationFindings, error)
}

// Analyst weighs findings and routes the session out of Orient.
type Analyst interface {
	Analyze(alert models.AlertContext, findings map[string]models.InvestigationFindings, cyclesLeft int) models.ReflectorAnalysis
}

// PlanBuilder turns an analysis into a remediation plan.
type PlanBuilder interface {
	BuildPlan(alert models.AlertContext, findings map[string]models.InvestigationFindings, analysis *models.ReflectorAnalysis) (*models.RemediationPlan, error)
}

// Gatekeeper scores a plan against policy.
type Gatekeeper interface {
	Evaluate(plan *models.RemediationPlan, lockedTargets []string, autoApprove bool) models.PolicyDecision
}

// ActionRunner executes a plan's actions.
type ActionRunner interface {
	Execute(ctx context.Context, plan *models.RemediationPlan) ([]models.ExecutionResult, error)
}

// OutcomeChecker re-reads signals after execution.
type OutcomeChecker interface {
	Verify(ctx context.Context, alert models.AlertContext, plan *models.RemediationPlan, before *models.GoldenSnapshot) *models.VerificationResult
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Investigators InvestigatorPool
	Reflector     Analyst
	Planner       PlanBuilder
	Gate          Gatekeeper
	Executor      ActionRunner
	Verifier      OutcomeChecker
	Signals       engine.SnapshotSource
	Hot           store.HotStore
	Cold          store.ColdStore
}

// Orchestrator owns every live incident session. Each session runs on its
// own worker goroutine that serializes all lifecycle work; the only ways in
// from outside are the approval signal and abort.
type Orchestrator struct {
	logger  *slog.Logger
	cfg     config.OrchestratorConfig
	deps    Deps
	latency *utils.LatencyTracker

	mu      sync.Mutex
	workers map[string]*worker

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs an orchestrator. Cold storage is optional; everything else
// in deps is required.
func New(logger *slog.Logger, cfg config.OrchestratorConfig, deps Deps) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxCycles < 1 {
		cfg.MaxCycles = 3
	}
	if cfg.MaxConcurrentSessions < 1 {
		cfg.MaxConcurrentSessions = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		logger:  logger,
		cfg:     cfg,
		deps:    deps,
		latency: utils.NewLatencyTracker(512),
		workers: make(map[string]*worker),
		rootCtx: ctx,
		cancel:  cancel,
	}
}

// StartSession creates a session for the alert and spawns its worker.
func (o *Orchestrator) StartSession(ctx context.Context, payload models.AlertPayload) (*models.IncidentSession, error) {
	if payload.Name == "" {
		return nil, fmt.Errorf("%w: alert has no name", utils.ErrValidation)
	}
	severity := payload.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}

	alert := models.AlertContext{
		ID:          uuid.NewString(),
		Name:        payload.Name,
		Labels:      payload.Labels,
		Annotations: payload.Annotations,
		Severity:    severity,
		StartsAt:    payload.StartsAt,
	}
	autoApprove := payload.AutoApprove || o.cfg.AutoApprovePlans
	sess := state.NewSession(alert, autoApprove)

	if err := o.deps.Hot.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist new session: %w", err)
	}

	if err := o.spawn(sess); err != nil {
		return nil, err
	}
	o.logger.Info("session started",
		slog.String("session", sess.ID),
		slog.String("alert", alert.Name),
		slog.String("severity", string(severity)))
	return sess.Clone(), nil
}

// Resume re-attaches workers to the non-terminal sessions found in the hot
// store, picking each one up at its persisted phase.
func (o *Orchestrator) Resume(ctx context.Context) error {
	sessions, err := o.deps.Hot.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.Phase.Terminal() {
			continue
		}
		if err := o.spawn(sess); err != nil {
			o.logger.Warn("could not resume session",
				slog.String("session", sess.ID), slog.Any("error", err))
			continue
		}
		o.logger.Info("session resumed",
			slog.String("session", sess.ID),
			slog.String("phase", string(sess.Phase)))
	}
	return nil
}

func (o *Orchestrator) spawn(sess *models.IncidentSession) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.workers[sess.ID]; exists {
		return fmt.Errorf("session %s already running", sess.ID)
	}
	if len(o.workers) >= o.cfg.MaxConcurrentSessions {
		return fmt.Errorf("session limit %d reached", o.cfg.MaxConcurrentSessions)
	}
	w := &worker{
		sess:    sess.Clone(),
		abortCh: make(chan string, 1),
		done:    make(chan struct{}),
	}
	o.workers[sess.ID] = w
	o.wg.Add(1)
	go o.run(w)
	return nil
}

// Signal resolves a pending approval. It fails with ErrNoPendingApproval
// when the session exists but is not parked, and ErrSessionNotFound when
// there is no such session at all.
func (o *Orchestrator) Signal(ctx context.Context, id string, sig models.ApprovalSignal) error {
	o.mu.Lock()
	w, running := o.workers[id]
	var approvalCh chan approvalResponse
	if running {
		approvalCh = w.takeApproval()
	}
	o.mu.Unlock()

	if !running {
		if _, err := o.deps.Hot.LoadSession(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: session %s", utils.ErrNoPendingApproval, id)
	}
	if approvalCh == nil {
		return fmt.Errorf("%w: session %s", utils.ErrNoPendingApproval, id)
	}

	approvalCh <- approvalResponse{approved: sig.Approved, approver: sig.Approver}
	return nil
}

// Abort closes a session from outside, at the next phase boundary.
func (o *Orchestrator) Abort(ctx context.Context, id, reason string) error {
	o.mu.Lock()
	w, running := o.workers[id]
	o.mu.Unlock()

	if running {
		select {
		case w.abortCh <- reason:
		default: // an abort is already pending
		}
		return nil
	}

	// No worker: either terminal already, or an orphan left by a crash.
	sess, err := o.deps.Hot.LoadSession(ctx, id)
	if err != nil {
		return err
	}
	closed, err := state.Abort(sess, reason)
	if err != nil {
		return err
	}
	if err := o.deps.Hot.SaveSession(ctx, closed); err != nil {
		return err
	}
	o.archive(ctx, closed)
	return nil
}

// Get returns the current snapshot of a session.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.IncidentSession, error) {
	return o.deps.Hot.LoadSession(ctx, id)
}

// List returns summaries of all live sessions, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]models.SessionSummary, error) {
	sessions, err := o.deps.Hot.ListActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, sess.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Trace returns the append-only reasoning trace of a session.
func (o *Orchestrator) Trace(ctx context.Context, id string) ([]models.ThoughtEntry, error) {
	if _, err := o.deps.Hot.LoadSession(ctx, id); err != nil {
		return nil, err
	}
	return o.deps.Hot.Trace(ctx, id)
}

// SweepApprovals rejects parked sessions whose approval deadline has passed.
// The worker's own timer is the primary mechanism; the sweep catches
// sessions resumed from a store written before a deadline change.
func (o *Orchestrator) SweepApprovals(ctx context.Context) {
	now := time.Now()
	o.mu.Lock()
	stale := make([]chan approvalResponse, 0)
	for _, w := range o.workers {
		if due := w.approvalDue(); due != nil && due.Before(now) {
			if ch := w.takeApproval(); ch != nil {
				stale = append(stale, ch)
			}
		}
	}
	o.mu.Unlock()

	for _, ch := range stale {
		ch <- approvalResponse{timedOut: true}
	}
}

// Archived returns summaries from the cold archive, newest first. Without a
// cold store configured the archive is simply empty.
func (o *Orchestrator) Archived(ctx context.Context, limit int) ([]models.SessionSummary, error) {
	if o.deps.Cold == nil {
		return nil, nil
	}
	return o.deps.Cold.ListArchived(ctx, limit)
}

// SweepOrphans re-attaches workers to hot-store sessions that have none.
// These are leftovers from a crash, or sessions Resume skipped because the
// concurrency limit was reached at the time.
func (o *Orchestrator) SweepOrphans(ctx context.Context) {
	sessions, err := o.deps.Hot.ListActiveSessions(ctx)
	if err != nil {
		o.logger.Warn("orphan sweep could not list sessions", slog.Any("error", err))
		return
	}
	for _, sess := range sessions {
		if sess.Phase.Terminal() {
			continue
		}
		o.mu.Lock()
		_, running := o.workers[sess.ID]
		o.mu.Unlock()
		if running {
			continue
		}
		if err := o.spawn(sess); err != nil {
			o.logger.Warn("orphaned session still unattached",
				slog.String("session", sess.ID), slog.Any("error", err))
			continue
		}
		o.logger.Info("orphaned session re-attached", slog.String("session", sess.ID))
	}
}

// LockTarget adds a break-glass lock. Any plan action against a locked
// target is forced to human approval while the lock holds.
func (o *Orchestrator) LockTarget(ctx context.Context, target string, ttl time.Duration) error {
	if target == "" {
		return fmt.Errorf("%w: empty lock target", utils.ErrValidation)
	}
	return o.deps.Hot.LockTarget(ctx, target, ttl)
}

// UnlockTarget releases a break-glass lock.
func (o *Orchestrator) UnlockTarget(ctx context.Context, target string) error {
	return o.deps.Hot.UnlockTarget(ctx, target)
}

// LockedTargets lists the current break-glass lock set.
func (o *Orchestrator) LockedTargets(ctx context.Context) ([]string, error) {
	return o.deps.Hot.LockedTargets(ctx)
}

// SessionLatency reports the p-th percentile (0-100) of end-to-end session
// time, surfaced on the health endpoint.
func (o *Orchestrator) SessionLatency(p float64) time.Duration {
	return o.latency.Percentile(p)
}

// Close stops accepting work and waits for running workers to park or
// finish their current phase.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) archive(ctx context.Context, sess *models.IncidentSession) {
	if o.deps.Cold == nil {
		return
	}
	if err := o.deps.Cold.ArchiveSession(ctx, sess); err != nil {
		o.logger.Warn("archive failed",
			slog.String("session", sess.ID), slog.Any("error", err))
	}
}

// IsNotFound reports whether err means the session does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, utils.ErrSessionNotFound)
}
