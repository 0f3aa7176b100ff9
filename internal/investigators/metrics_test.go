package investigators

import (
	"context"
	"testing"
	"time"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/repo"
)

type fakeSignals struct {
	snapshot *models.GoldenSnapshot
	series   []repo.MetricPoint
	logs     []repo.LogEntry
	workload *repo.WorkloadState
	commits  []repo.Commit
	err      error

	seriesStart time.Time
}

func (f *fakeSignals) GoldenSnapshot(ctx context.Context, service string) (*models.GoldenSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func (f *fakeSignals) FetchMetricSeries(ctx context.Context, service, metric string, start, end time.Time) ([]repo.MetricPoint, error) {
	f.seriesStart = start
	if f.err != nil {
		return nil, f.err
	}
	return f.series, nil
}

func (f *fakeSignals) FetchLogEntries(ctx context.Context, service string, start, end time.Time) ([]repo.LogEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.logs, nil
}

func (f *fakeSignals) FetchWorkloadState(ctx context.Context, service string) (*repo.WorkloadState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.workload, nil
}

func (f *fakeSignals) FetchRecentCommits(ctx context.Context, service string, since time.Time) ([]repo.Commit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.commits, nil
}

func flatSeriesWithSpike() []repo.MetricPoint {
	now := time.Now()
	series := make([]repo.MetricPoint, 0, 16)
	for i := 0; i < 15; i++ {
		series = append(series, repo.MetricPoint{Timestamp: now.Add(time.Duration(i) * time.Minute), Value: 0.5})
	}
	series = append(series, repo.MetricPoint{Timestamp: now.Add(16 * time.Minute), Value: 4.0})
	return series
}

func TestMetricsInvestigatorFindsSpike(t *testing.T) {
	signals := &fakeSignals{
		snapshot: &models.GoldenSnapshot{CPUUsagePercent: 40, ErrorRate: 0.01, LatencyP95: 2.2, Source: "prometheus"},
		series:   flatSeriesWithSpike(),
	}
	inv := NewMetricsInvestigator(signals, 2.5)

	findings, err := inv.Investigate(context.Background(), latencyAlert(), nil, 1)
	if err != nil {
		t.Fatalf("investigate: %v", err)
	}
	if findings.Status != models.FindingOK {
		t.Fatalf("expected ok, got %s", findings.Status)
	}

	spikes := 0
	for _, ev := range findings.Evidence {
		if ev.Kind == "metric_anomaly" {
			spikes++
		}
	}
	if spikes != 1 {
		t.Fatalf("expected 1 anomaly, got %d", spikes)
	}
}

func TestMetricsInvestigatorPartialWhenSeriesUnavailable(t *testing.T) {
	signals := &fakeSignals{
		snapshot: &models.GoldenSnapshot{Source: "prometheus"},
	}
	inv := NewMetricsInvestigator(signals, 2.5)

	findings, err := inv.Investigate(context.Background(), latencyAlert(), nil, 1)
	if err != nil {
		t.Fatalf("investigate: %v", err)
	}
	if findings.Status != models.FindingPartial {
		t.Fatalf("expected partial, got %s", findings.Status)
	}
}

func TestMetricsInvestigatorWidensWindowOnRepeat(t *testing.T) {
	signals := &fakeSignals{
		snapshot: &models.GoldenSnapshot{Source: "prometheus"},
		series:   flatSeriesWithSpike(),
	}
	inv := NewMetricsInvestigator(signals, 2.5)

	if _, err := inv.Investigate(context.Background(), latencyAlert(), nil, 0); err != nil {
		t.Fatalf("investigate: %v", err)
	}
	firstStart := signals.seriesStart

	prior := map[string]models.InvestigationFindings{
		"metrics": {
			Investigator: "metrics", Status: models.FindingOK, Cycle: 0,
			Evidence: []models.EvidenceItem{{Kind: "golden_snapshot", Confidence: 0.5}},
		},
	}
	if _, err := inv.Investigate(context.Background(), latencyAlert(), prior, 1); err != nil {
		t.Fatalf("investigate: %v", err)
	}
	if !signals.seriesStart.Before(firstStart) {
		t.Fatalf("empty prior pass should widen the lookback: first %v, repeat %v",
			firstStart, signals.seriesStart)
	}
}

func TestVersionControlInvestigatorRanksRecentCommit(t *testing.T) {
	alert := latencyAlert()
	signals := &fakeSignals{
		commits: []repo.Commit{
			{SHA: "abc123", Author: "dev", Message: "tune pool", Timestamp: alert.StartsAt.Add(-20 * time.Minute)},
			{SHA: "def456", Author: "dev", Message: "older change", Timestamp: alert.StartsAt.Add(-3 * time.Hour)},
		},
	}
	inv := NewVersionControlInvestigator(signals)

	findings, err := inv.Investigate(context.Background(), alert, nil, 1)
	if err != nil {
		t.Fatalf("investigate: %v", err)
	}
	top, ok := findings.TopEvidence()
	if !ok || top.Payload["sha"] != "abc123" {
		t.Fatalf("expected abc123 as top evidence, got %+v", top)
	}
	if top.Confidence <= 0.7 {
		t.Fatalf("commit inside the lead window should score high, got %f", top.Confidence)
	}
}
