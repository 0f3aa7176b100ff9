package investigators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sentinelstack/responder/internal/metrics"
	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/utils"
)

// routes maps alert categories to the investigators worth running for them.
// Unknown categories fall back to the broad default set.
var routes = map[string][]string{
	"high_latency": {"metrics", "logs", "version_control"},
	"crash_loop":   {"infrastructure", "logs", "runbooks"},
}

var defaultRoute = []string{"metrics", "logs", "infrastructure", "runbooks"}

// Registry owns the investigator set and fans alert investigations out
// across them with a per-investigator deadline.
type Registry struct {
	logger        *slog.Logger
	investigators map[string]Investigator
	timeout       time.Duration
}

// NewRegistry builds a registry over the given investigators. timeout bounds
// each individual investigator pass.
func NewRegistry(logger *slog.Logger, timeout time.Duration, investigators ...Investigator) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	byName := make(map[string]Investigator, len(investigators))
	for _, inv := range investigators {
		byName[inv.Name()] = inv
	}
	return &Registry{logger: logger, investigators: byName, timeout: timeout}
}

// Select returns the investigators routed for the alert category.
func (r *Registry) Select(category string) []Investigator {
	names, ok := routes[category]
	if !ok {
		names = defaultRoute
	}
	selected := make([]Investigator, 0, len(names))
	for _, name := range names {
		if inv, ok := r.investigators[name]; ok {
			selected = append(selected, inv)
		}
	}
	return selected
}

// Run fans the alert out to the routed investigators and collects their
// findings keyed by investigator name. prior carries the findings from
// earlier cycles into each investigator. A failed or timed-out investigator
// yields a failed finding with no evidence; Run itself only errors when the
// parent context dies.
func (r *Registry) Run(ctx context.Context, alert models.AlertContext, prior map[string]models.InvestigationFindings, cycle int) (map[string]models.InvestigationFindings, error) {
	selected := r.Select(alert.Category())
	if len(selected) == 0 {
		return nil, fmt.Errorf("no investigators registered for category %q", alert.Category())
	}

	results := make(map[string]models.InvestigationFindings, len(selected))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, inv := range selected {
		inv := inv
		g.Go(func() error {
			invCtx, cancel := context.WithTimeout(gctx, r.timeout)
			defer cancel()

			findings, err := inv.Investigate(invCtx, alert, prior, cycle)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					err = fmt.Errorf("%w: %s after %s", utils.ErrInvestigatorTimeout, inv.Name(), r.timeout)
				}
				r.logger.Warn("investigator failed",
					slog.String("investigator", inv.Name()),
					slog.String("alert", alert.Name),
					slog.Any("error", err))
				findings = models.InvestigationFindings{
					Investigator: inv.Name(),
					Summary:      err.Error(),
					Status:       models.FindingFailed,
					Cycle:        cycle,
					CollectedAt:  time.Now().UTC(),
				}
			}
			metrics.ObserveInvestigation(inv.Name(), string(findings.Status))

			mu.Lock()
			results[inv.Name()] = findings
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
