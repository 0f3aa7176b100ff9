package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/utils"
)

type fakeSnapshots struct {
	snap *models.GoldenSnapshot
	err  error
}

func (f *fakeSnapshots) GoldenSnapshot(ctx context.Context, service string) (*models.GoldenSnapshot, error) {
	return f.snap, f.err
}

func latencyPlan() *models.RemediationPlan {
	return &models.RemediationPlan{
		PlanID:              "p1",
		VerificationMetrics: []string{"latency_p95_seconds", "http_error_rate"},
	}
}

func TestVerifierResolvedWhenRecovered(t *testing.T) {
	v := NewVerifier(nil, &fakeSnapshots{
		snap: &models.GoldenSnapshot{LatencyP95: 0.4, ErrorRate: 0.01},
	}, 0)
	before := &models.GoldenSnapshot{LatencyP95: 2.4, ErrorRate: 0.12}

	result := v.Verify(context.Background(), highLatencyAlert(), latencyPlan(), before)
	if !result.Resolved {
		t.Fatalf("recovered metrics should resolve: %+v", result)
	}
	if len(result.Deltas) != 2 {
		t.Fatalf("expected deltas for both metrics: %+v", result.Deltas)
	}
}

func TestVerifierUnresolvedWhenStillDegraded(t *testing.T) {
	v := NewVerifier(nil, &fakeSnapshots{
		snap: &models.GoldenSnapshot{LatencyP95: 3.1, ErrorRate: 0.15},
	}, 0)
	before := &models.GoldenSnapshot{LatencyP95: 2.4, ErrorRate: 0.12}

	result := v.Verify(context.Background(), highLatencyAlert(), latencyPlan(), before)
	if result.Resolved {
		t.Fatalf("degraded metrics must not resolve: %+v", result)
	}
}

func TestVerifierImprovementAloneDoesNotResolve(t *testing.T) {
	// Latency dropped from 3.0 to 1.5 but the threshold is 1.0: still broken.
	v := NewVerifier(nil, &fakeSnapshots{
		snap: &models.GoldenSnapshot{LatencyP95: 1.5, ErrorRate: 0.01},
	}, 0)
	before := &models.GoldenSnapshot{LatencyP95: 3.0, ErrorRate: 0.01}

	result := v.Verify(context.Background(), highLatencyAlert(), latencyPlan(), before)
	if result.Resolved {
		t.Fatalf("over-threshold metric must stay unresolved: %+v", result)
	}
}

func TestVerifierUnavailableSourceNeverResolves(t *testing.T) {
	v := NewVerifier(nil, &fakeSnapshots{
		err: fmt.Errorf("%w: down", utils.ErrExternalUnavailable),
	}, 0)

	result := v.Verify(context.Background(), highLatencyAlert(), latencyPlan(), nil)
	if result.Resolved {
		t.Fatal("unavailable source must not fabricate a resolution")
	}
	for _, delta := range result.Deltas {
		if !delta.Unavailable {
			t.Fatalf("deltas should be marked unavailable: %+v", delta)
		}
	}
}

func TestVerifierHonoursThresholdAnnotations(t *testing.T) {
	alert := highLatencyAlert()
	alert.Annotations = map[string]string{"threshold_latency_p95_seconds": "3.0"}

	v := NewVerifier(nil, &fakeSnapshots{
		snap: &models.GoldenSnapshot{LatencyP95: 2.4, ErrorRate: 0.01},
	}, 0)
	plan := &models.RemediationPlan{PlanID: "p1", VerificationMetrics: []string{"latency_p95_seconds"}}

	result := v.Verify(context.Background(), alert, plan, &models.GoldenSnapshot{LatencyP95: 2.5})
	if !result.Resolved {
		t.Fatalf("2.4 is under the annotated 3.0 threshold: %+v", result)
	}
}
