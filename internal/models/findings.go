package models

import "time"

// FindingStatus describes how an investigator's pass ended.
type FindingStatus string

const (
	FindingOK      FindingStatus = "ok"
	FindingPartial FindingStatus = "partial"
	FindingFailed  FindingStatus = "failed"
)

// EvidenceItem is a single structured observation collected by an investigator.
type EvidenceItem struct {
	Kind       string         `json:"kind"`
	Source     string         `json:"source"`
	Payload    map[string]any `json:"payload,omitempty"`
	Confidence float64        `json:"confidence"`
}

// InvestigationFindings is the structured result of one investigator pass.
// Findings are immutable once produced; a later cycle's findings from the
// same investigator supersede them wholesale.
type InvestigationFindings struct {
	Investigator string         `json:"investigator"`
	Summary      string         `json:"summary"`
	Evidence     []EvidenceItem `json:"evidence,omitempty"`
	Status       FindingStatus  `json:"status"`
	Cycle        int            `json:"cycle"`
	CollectedAt  time.Time      `json:"collected_at"`
}

// TopEvidence returns the highest-confidence evidence item, if any.
func (f InvestigationFindings) TopEvidence() (EvidenceItem, bool) {
	var best EvidenceItem
	found := false
	for _, ev := range f.Evidence {
		if !found || ev.Confidence > best.Confidence {
			best = ev
			found = true
		}
	}
	return best, found
}

// ReflectorDecision routes the session out of the Orient phase.
type ReflectorDecision string

const (
	DecisionProceed       ReflectorDecision = "proceed"
	DecisionReinvestigate ReflectorDecision = "re_investigate"
	DecisionInconclusive  ReflectorDecision = "inconclusive"
)

// ReflectorAnalysis is the Orient phase output: a hypothesis with confidence
// and the routing decision derived from it.
type ReflectorAnalysis struct {
	Hypothesis    string            `json:"hypothesis"`
	Confidence    float64           `json:"confidence"`
	Discrepancies []string          `json:"discrepancies,omitempty"`
	Decision      ReflectorDecision `json:"decision"`
	CreatedAt     time.Time         `json:"created_at"`
}
