package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/utils"
)

// SnapshotSource is the golden-signal read the verifier depends on.
type SnapshotSource interface {
	GoldenSnapshot(ctx context.Context, service string) (*models.GoldenSnapshot, error)
}

// Verifier re-reads golden signals after execution and decides whether the
// incident is resolved. It only ever compares real readings; an unavailable
// source yields an unresolved result, never a fabricated one.
type Verifier struct {
	logger      *slog.Logger
	signals     SnapshotSource
	settleDelay time.Duration
}

// defaultThresholds are the pass values when the alert carries no
// per-metric threshold annotation.
var defaultThresholds = map[string]float64{
	"cpu_usage_percent":   80,
	"http_error_rate":     0.05,
	"latency_p95_seconds": 1.0,
}

// NewVerifier constructs a verifier. settleDelay is how long to let the
// system settle after the last action before re-reading signals.
func NewVerifier(logger *slog.Logger, signals SnapshotSource, settleDelay time.Duration) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{logger: logger, signals: signals, settleDelay: settleDelay}
}

// Verify waits out the settle delay, re-reads golden signals and compares
// them to the pre-execution snapshot on the plan's verification metrics.
func (v *Verifier) Verify(ctx context.Context, alert models.AlertContext, plan *models.RemediationPlan, before *models.GoldenSnapshot) *models.VerificationResult {
	result := &models.VerificationResult{CheckedAt: time.Now().UTC()}

	if v.settleDelay > 0 {
		timer := time.NewTimer(v.settleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			result.Summary = "verification interrupted: " + ctx.Err().Error()
			return result
		case <-timer.C:
		}
	}

	service := alert.Label("service", "app", "deployment")
	after, err := v.signals.GoldenSnapshot(ctx, service)
	if err != nil {
		v.logger.Warn("verification snapshot unavailable",
			slog.String("service", service), slog.Any("error", err))
		result.Summary = "signal source unavailable, incident left unverified"
		for _, metric := range verificationMetrics(plan) {
			result.Deltas = append(result.Deltas, models.MetricDelta{Metric: metric, Unavailable: true})
		}
		result.CheckedAt = time.Now().UTC()
		return result
	}

	resolved := true
	checked := 0
	for _, metric := range verificationMetrics(plan) {
		delta := models.MetricDelta{
			Metric:    metric,
			Threshold: thresholdFor(alert, metric),
		}
		beforeVal, beforeOK := snapshotValue(before, metric)
		afterVal, afterOK := snapshotValue(after, metric)
		if !afterOK {
			delta.Unavailable = true
			result.Deltas = append(result.Deltas, delta)
			continue
		}
		delta.After = afterVal
		if beforeOK {
			delta.Before = beforeVal
		}
		checked++
		// Improvement against the baseline is not recovery; only being
		// under threshold counts.
		if afterVal > delta.Threshold {
			resolved = false
		}
		result.Deltas = append(result.Deltas, delta)
	}

	if checked == 0 {
		result.Summary = "no verification metrics could be read"
		return result
	}

	result.Resolved = resolved
	result.CheckedAt = time.Now().UTC()
	if resolved {
		result.Summary = fmt.Sprintf("%d/%d verification metrics recovered", checked, len(result.Deltas))
	} else {
		result.Summary = "verification metrics still degraded"
	}
	return result
}

func verificationMetrics(plan *models.RemediationPlan) []string {
	if plan != nil && len(plan.VerificationMetrics) > 0 {
		return plan.VerificationMetrics
	}
	return []string{"http_error_rate"}
}

func thresholdFor(alert models.AlertContext, metric string) float64 {
	fallback, ok := defaultThresholds[metric]
	if !ok {
		fallback = 0
	}
	return utils.ParseThreshold(alert.Annotations["threshold_"+metric], fallback)
}

func snapshotValue(snap *models.GoldenSnapshot, metric string) (float64, bool) {
	if snap == nil {
		return 0, false
	}
	switch metric {
	case "cpu_usage_percent":
		return snap.CPUUsagePercent, true
	case "http_error_rate":
		return snap.ErrorRate, true
	case "latency_p95_seconds":
		return snap.LatencyP95, true
	default:
		return 0, false
	}
}
