package investigators

import (
	"context"
	"time"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/repo"
)

// SignalSource defines the observability reads investigators depend on.
type SignalSource interface {
	GoldenSnapshot(ctx context.Context, service string) (*models.GoldenSnapshot, error)
	FetchMetricSeries(ctx context.Context, service, metric string, start, end time.Time) ([]repo.MetricPoint, error)
	FetchLogEntries(ctx context.Context, service string, start, end time.Time) ([]repo.LogEntry, error)
	FetchWorkloadState(ctx context.Context, service string) (*repo.WorkloadState, error)
	FetchRecentCommits(ctx context.Context, service string, since time.Time) ([]repo.Commit, error)
}

// RunbookIndex defines the runbook lookup used by the knowledge investigator.
type RunbookIndex interface {
	Search(ctx context.Context, category, service string, limit int) ([]repo.Runbook, error)
}

// Investigator gathers evidence for one dimension of an incident. prior is
// the session's accumulated findings from earlier cycles, so re-investigation
// passes can build on what was already found. The registry runs investigators
// concurrently and owns their deadlines.
type Investigator interface {
	Name() string
	Investigate(ctx context.Context, alert models.AlertContext, prior map[string]models.InvestigationFindings, cycle int) (models.InvestigationFindings, error)
}

// lookbackWindow is how far back investigators read when the alert carries
// no start time.
const lookbackWindow = 30 * time.Minute

func window(alert models.AlertContext) (time.Time, time.Time) {
	end := time.Now().UTC()
	start := alert.StartsAt
	if start.IsZero() || !start.Before(end) {
		start = end.Add(-lookbackWindow)
	}
	return start, end
}

func serviceOf(alert models.AlertContext) string {
	return alert.Label("service", "app", "deployment")
}

// priorLacksKind reports whether the named investigator already ran without
// surfacing evidence of the given kind. Investigators widen their lookback on
// such repeats instead of re-reading the same empty window.
func priorLacksKind(prior map[string]models.InvestigationFindings, name, kind string) bool {
	f, ok := prior[name]
	if !ok || f.Status == models.FindingFailed {
		return false
	}
	for _, ev := range f.Evidence {
		if ev.Kind == kind {
			return false
		}
	}
	return true
}

// priorHasKind reports whether any earlier finding carries evidence of the
// given kind.
func priorHasKind(prior map[string]models.InvestigationFindings, kind string) bool {
	for _, f := range prior {
		for _, ev := range f.Evidence {
			if ev.Kind == kind {
				return true
			}
		}
	}
	return false
}
