package store

import (
	"context"
	"time"

	"github.com/sentinelstack/responder/internal/models"
)

// HotStore is durable working state for live sessions: the session snapshot
// overwritten on every phase boundary, the append-only trace, and the
// break-glass lock set the policy gate reads.
type HotStore interface {
	SaveSession(ctx context.Context, sess *models.IncidentSession) error
	LoadSession(ctx context.Context, id string) (*models.IncidentSession, error)
	DeleteSession(ctx context.Context, id string) error
	ListActiveSessions(ctx context.Context) ([]*models.IncidentSession, error)

	AppendTrace(ctx context.Context, id string, entries ...models.ThoughtEntry) error
	Trace(ctx context.Context, id string) ([]models.ThoughtEntry, error)

	LockTarget(ctx context.Context, target string, ttl time.Duration) error
	UnlockTarget(ctx context.Context, target string) error
	LockedTargets(ctx context.Context) ([]string, error)

	Close() error
}

// ColdStore is the long-term archive terminal sessions move to.
type ColdStore interface {
	ArchiveSession(ctx context.Context, sess *models.IncidentSession) error
	ListArchived(ctx context.Context, limit int) ([]models.SessionSummary, error)
	Close() error
}
