package investigators

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/repo"
)

// MetricsInvestigator reads golden signals and the alerting metric's recent
// series, flagging samples that deviate from the window baseline.
type MetricsInvestigator struct {
	signals   SignalSource
	threshold float64
}

// NewMetricsInvestigator constructs the metrics investigator. threshold is
// the z-score above which a sample counts as anomalous.
func NewMetricsInvestigator(signals SignalSource, threshold float64) *MetricsInvestigator {
	if threshold <= 0 {
		threshold = 2.5
	}
	return &MetricsInvestigator{signals: signals, threshold: threshold}
}

func (m *MetricsInvestigator) Name() string { return "metrics" }

func (m *MetricsInvestigator) Investigate(ctx context.Context, alert models.AlertContext, prior map[string]models.InvestigationFindings, cycle int) (models.InvestigationFindings, error) {
	service := serviceOf(alert)
	start, end := window(alert)
	if priorLacksKind(prior, m.Name(), "metric_anomaly") {
		start = start.Add(-lookbackWindow)
	}

	findings := models.InvestigationFindings{
		Investigator: m.Name(),
		Cycle:        cycle,
		CollectedAt:  time.Now().UTC(),
	}

	snapshot, err := m.signals.GoldenSnapshot(ctx, service)
	if err != nil {
		return findings, err
	}
	findings.Evidence = append(findings.Evidence, models.EvidenceItem{
		Kind:   "golden_snapshot",
		Source: snapshot.Source,
		Payload: map[string]any{
			"cpu_usage_percent":   snapshot.CPUUsagePercent,
			"http_error_rate":     snapshot.ErrorRate,
			"latency_p95_seconds": snapshot.LatencyP95,
		},
		Confidence: 0.5,
	})

	metric := alert.Label("metric")
	if metric == "" {
		metric = "latency_p95_seconds"
	}

	series, err := m.signals.FetchMetricSeries(ctx, service, metric, start, end)
	if err != nil {
		findings.Status = models.FindingPartial
		findings.Summary = fmt.Sprintf("golden signals collected, %s series unavailable", metric)
		return findings, nil
	}

	anomalies := detectScoreAnomalies(series, m.threshold)
	for _, a := range anomalies {
		findings.Evidence = append(findings.Evidence, models.EvidenceItem{
			Kind:   "metric_anomaly",
			Source: metric,
			Payload: map[string]any{
				"timestamp": a.Timestamp.Format(time.RFC3339),
				"value":     a.Value,
				"score":     a.Score,
			},
			Confidence: clamp(a.Score/5, 0.3, 0.95),
		})
	}

	findings.Status = models.FindingOK
	if len(anomalies) == 0 {
		findings.Summary = fmt.Sprintf("no anomalies in %s over the last window", metric)
	} else {
		findings.Summary = fmt.Sprintf("%d anomalous %s samples above baseline", len(anomalies), metric)
	}
	return findings, nil
}

type scoreAnomaly struct {
	Timestamp time.Time
	Value     float64
	Score     float64
}

// detectScoreAnomalies flags samples whose z-score against the series
// baseline clears the threshold.
func detectScoreAnomalies(series []repo.MetricPoint, threshold float64) []scoreAnomaly {
	if len(series) == 0 {
		return nil
	}

	mean := 0.0
	for _, point := range series {
		mean += point.Value
	}
	mean /= float64(len(series))

	variance := 0.0
	for _, point := range series {
		variance += math.Pow(point.Value-mean, 2)
	}
	variance /= float64(len(series))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		stdDev = 0.01
	}

	anomalies := make([]scoreAnomaly, 0)
	for _, point := range series {
		score := (point.Value - mean) / stdDev
		if score >= threshold {
			anomalies = append(anomalies, scoreAnomaly{
				Timestamp: point.Timestamp,
				Value:     point.Value,
				Score:     score,
			})
		}
	}
	return anomalies
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
