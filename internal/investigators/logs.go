package investigators

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sentinelstack/responder/internal/models"
)

// LogsInvestigator spots error-volume spikes against the window's baseline
// using deviation from the median.
type LogsInvestigator struct {
	signals SignalSource
}

// NewLogsInvestigator constructs the log investigator.
func NewLogsInvestigator(signals SignalSource) *LogsInvestigator {
	return &LogsInvestigator{signals: signals}
}

func (l *LogsInvestigator) Name() string { return "logs" }

func (l *LogsInvestigator) Investigate(ctx context.Context, alert models.AlertContext, prior map[string]models.InvestigationFindings, cycle int) (models.InvestigationFindings, error) {
	service := serviceOf(alert)
	start, end := window(alert)
	if priorLacksKind(prior, l.Name(), "log_spike") {
		start = start.Add(-lookbackWindow)
	}

	findings := models.InvestigationFindings{
		Investigator: l.Name(),
		Cycle:        cycle,
		CollectedAt:  time.Now().UTC(),
	}

	entries, err := l.signals.FetchLogEntries(ctx, service, start, end)
	if err != nil {
		return findings, err
	}
	if len(entries) == 0 {
		findings.Status = models.FindingPartial
		findings.Summary = "no log aggregates in the window"
		return findings, nil
	}

	counts := make([]float64, 0, len(entries))
	for _, entry := range entries {
		counts = append(counts, float64(entry.Count))
	}
	median := percentile(counts, 0.5)
	mad := meanAbsoluteDeviation(counts, median)
	if mad == 0 {
		mad = 1
	}

	spikes := 0
	for _, entry := range entries {
		score := math.Abs(float64(entry.Count)-median) / mad
		isErrorSurge := strings.EqualFold(entry.Severity, "error") && entry.Count > int(median*1.3)
		if score < 3 && !isErrorSurge {
			continue
		}
		if score < 3 {
			score = 3
		}
		spikes++
		findings.Evidence = append(findings.Evidence, models.EvidenceItem{
			Kind:   "log_spike",
			Source: entry.Severity,
			Payload: map[string]any{
				"timestamp": entry.Timestamp.Format(time.RFC3339),
				"message":   entry.Message,
				"count":     entry.Count,
				"score":     score,
			},
			Confidence: clamp(score/6, 0.3, 0.9),
		})
	}

	findings.Status = models.FindingOK
	if spikes == 0 {
		findings.Summary = "log volume within baseline"
	} else {
		findings.Summary = fmt.Sprintf("%d log spikes above the window median", spikes)
	}
	return findings, nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(math.Round(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func meanAbsoluteDeviation(values []float64, center float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += math.Abs(v - center)
	}
	return sum / float64(len(values))
}
