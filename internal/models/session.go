package models

import "time"

// Phase enumerates the incident lifecycle states. The set is closed; the
// orchestrator's transition table is defined over exactly these values.
type Phase string

const (
	PhaseObserve          Phase = "observe"
	PhaseOrient           Phase = "orient"
	PhaseDecide           Phase = "decide"
	PhasePolicyGate       Phase = "policy_gate"
	PhaseAwaitingApproval Phase = "awaiting_approval"
	PhaseAct              Phase = "act"
	PhaseVerify           Phase = "verify"
	PhaseClosed           Phase = "closed"
	PhaseEscalated        Phase = "escalated"
)

// Terminal reports whether the phase ends the session.
func (p Phase) Terminal() bool {
	return p == PhaseClosed || p == PhaseEscalated
}

// ApprovalState tracks human sign-off on the current plan.
type ApprovalState string

const (
	ApprovalNotRequired ApprovalState = "not_required"
	ApprovalPending     ApprovalState = "pending"
	ApprovalApproved    ApprovalState = "approved"
	ApprovalRejected    ApprovalState = "rejected"
)

// ThoughtEntry is one line of the session's append-only reasoning trace.
type ThoughtEntry struct {
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// IncidentSession is the aggregate root threaded through the whole lifecycle.
// The orchestrator exclusively owns its identity and phase transitions; phase
// handlers receive a copy and hand back outputs, never retaining a handle.
type IncidentSession struct {
	ID        string    `json:"id"`
	Phase     Phase     `json:"phase"`
	Cycle     int       `json:"cycle"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Alert        AlertContext                     `json:"alert"`
	Findings     map[string]InvestigationFindings `json:"findings,omitempty"`
	Analysis     *ReflectorAnalysis               `json:"analysis,omitempty"`
	Plan         *RemediationPlan                 `json:"plan,omitempty"`
	Gate         *PolicyDecision                  `json:"gate,omitempty"`
	Approval     ApprovalState                    `json:"approval"`
	ApprovalDue  *time.Time                       `json:"approval_due,omitempty"`
	Executions   []ExecutionResult                `json:"executions,omitempty"`
	Verification *VerificationResult              `json:"verification,omitempty"`
	Trace        []ThoughtEntry                   `json:"trace,omitempty"`

	AutoApprovePlan bool   `json:"auto_approve_plan"`
	CloseReason     string `json:"close_reason,omitempty"`
}

// Clone returns a deep copy so phase handlers can work on a snapshot without
// aliasing the orchestrator's copy.
func (s *IncidentSession) Clone() *IncidentSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.Findings != nil {
		out.Findings = make(map[string]InvestigationFindings, len(s.Findings))
		for name, f := range s.Findings {
			f.Evidence = append([]EvidenceItem(nil), f.Evidence...)
			out.Findings[name] = f
		}
	}
	if s.Analysis != nil {
		analysis := *s.Analysis
		analysis.Discrepancies = append([]string(nil), s.Analysis.Discrepancies...)
		out.Analysis = &analysis
	}
	if s.Plan != nil {
		plan := *s.Plan
		plan.Actions = append([]RemediationAction(nil), s.Plan.Actions...)
		plan.VerificationMetrics = append([]string(nil), s.Plan.VerificationMetrics...)
		out.Plan = &plan
	}
	if s.Gate != nil {
		gate := *s.Gate
		gate.ActionRisks = append([]ActionRisk(nil), s.Gate.ActionRisks...)
		out.Gate = &gate
	}
	if s.ApprovalDue != nil {
		due := *s.ApprovalDue
		out.ApprovalDue = &due
	}
	if s.Verification != nil {
		verification := *s.Verification
		verification.Deltas = append([]MetricDelta(nil), s.Verification.Deltas...)
		out.Verification = &verification
	}
	out.Executions = append([]ExecutionResult(nil), s.Executions...)
	out.Trace = append([]ThoughtEntry(nil), s.Trace...)
	return &out
}

// AppendThought appends trace entries, dropping duplicates by actor+text.
func (s *IncidentSession) AppendThought(entries ...ThoughtEntry) {
	for _, entry := range entries {
		dup := false
		for _, existing := range s.Trace {
			if existing.Actor == entry.Actor && existing.Text == entry.Text {
				dup = true
				break
			}
		}
		if !dup {
			s.Trace = append(s.Trace, entry)
		}
	}
}
