package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sentinelstack/responder/internal/models"
)

// PlanPack holds operator-authored remediation templates loaded from YAML.
// Pack rules are consulted before the built-in catalog.
type PlanPack struct {
	rules  []PlanRule
	logger *slog.Logger
}

// PlanRule maps an incident shape to a remediation template.
type PlanRule struct {
	ID                  string           `yaml:"id"`
	Match               PlanMatch        `yaml:"match"`
	Actions             []ActionTemplate `yaml:"actions"`
	RiskLevel           string           `yaml:"risk_level"`
	VerificationMetrics []string         `yaml:"verification_metrics"`
}

// PlanMatch defines optional attributes for rule matching.
type PlanMatch struct {
	Category     string   `yaml:"category"`
	EvidenceKind []string `yaml:"evidence_kind"`
	Severity     string   `yaml:"severity"`
}

// ActionTemplate is an action with placeholder parameters. "${service}" and
// "${commit_sha}" are resolved at plan time; a template whose placeholders
// cannot be resolved disqualifies its rule.
type ActionTemplate struct {
	Type       string         `yaml:"type"`
	Target     string         `yaml:"target"`
	Parameters map[string]any `yaml:"parameters"`
	Reason     string         `yaml:"reason"`
}

type planPackFile struct {
	Plans []PlanRule `yaml:"plans"`
}

// NewPlanPack loads plan templates from the provided path. An empty path or
// missing file returns a nil pack, which matches nothing.
func NewPlanPack(path string, logger *slog.Logger) (*PlanPack, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var file planPackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanPack{rules: file.Plans, logger: logger}, nil
}

// Match returns the first rule matching the incident shape, if any.
func (p *PlanPack) Match(alert models.AlertContext, evidenceKinds []string) (PlanRule, bool) {
	if p == nil {
		return PlanRule{}, false
	}
	for _, rule := range p.rules {
		if rule.Match.Category != "" && !strings.EqualFold(rule.Match.Category, alert.Category()) {
			continue
		}
		if rule.Match.Severity != "" && !strings.EqualFold(rule.Match.Severity, string(alert.Severity)) {
			continue
		}
		if len(rule.Match.EvidenceKind) > 0 && !anyKindMatches(rule.Match.EvidenceKind, evidenceKinds) {
			continue
		}
		return rule, true
	}
	return PlanRule{}, false
}

func anyKindMatches(wanted, present []string) bool {
	for _, w := range wanted {
		if containsFold(present, w) {
			return true
		}
	}
	return false
}
