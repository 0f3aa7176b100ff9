package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/utils"
)

// PostgresArchive is the cold store for terminal sessions. The full session
// document is kept as JSONB alongside the columns the list view filters on.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS incident_sessions (
    id           TEXT PRIMARY KEY,
    alert_name   TEXT NOT NULL,
    severity     TEXT NOT NULL,
    phase        TEXT NOT NULL,
    cycle        INT NOT NULL,
    close_reason TEXT NOT NULL DEFAULT '',
    document     JSONB NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    archived_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS incident_sessions_archived_at_idx
    ON incident_sessions (archived_at DESC);
`

// NewPostgresArchive connects to Postgres and ensures the archive schema.
func NewPostgresArchive(ctx context.Context, dsn string) (*PostgresArchive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	if _, err := pool.Exec(ctx, archiveSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}
	return &PostgresArchive{pool: pool}, nil
}

// ArchiveSession upserts a terminal session into the archive.
func (p *PostgresArchive) ArchiveSession(ctx context.Context, sess *models.IncidentSession) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("archive: session has no id")
	}
	document, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
        INSERT INTO incident_sessions (id, alert_name, severity, phase, cycle, close_reason, document, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            phase = EXCLUDED.phase,
            cycle = EXCLUDED.cycle,
            close_reason = EXCLUDED.close_reason,
            document = EXCLUDED.document,
            archived_at = now()`,
		sess.ID, sess.Alert.Name, string(sess.Alert.Severity), string(sess.Phase),
		sess.Cycle, sess.CloseReason, document, sess.CreatedAt)
	if err != nil {
		return utils.NewAppError("archive_session", "insert into incident_sessions failed", err)
	}
	return nil
}

// ListArchived returns the most recently archived sessions.
func (p *PostgresArchive) ListArchived(ctx context.Context, limit int) ([]models.SessionSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
        SELECT id, alert_name, severity, phase, cycle, created_at, archived_at
        FROM incident_sessions
        ORDER BY archived_at DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, utils.NewAppError("list_archived", "query incident_sessions failed", err)
	}
	defer rows.Close()

	summaries := make([]models.SessionSummary, 0, limit)
	for rows.Next() {
		var s models.SessionSummary
		var severity, phase string
		var archivedAt time.Time
		if err := rows.Scan(&s.ID, &s.AlertName, &severity, &phase, &s.Cycle, &s.CreatedAt, &archivedAt); err != nil {
			return nil, err
		}
		s.Severity = models.Severity(severity)
		s.Phase = models.Phase(phase)
		s.UpdatedAt = archivedAt
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (p *PostgresArchive) Close() error {
	p.pool.Close()
	return nil
}
