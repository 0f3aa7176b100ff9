package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/utils"
)

// Controller is the session lifecycle surface the API exposes.
type Controller interface {
	StartSession(ctx context.Context, payload models.AlertPayload) (*models.IncidentSession, error)
	Signal(ctx context.Context, id string, sig models.ApprovalSignal) error
	Abort(ctx context.Context, id, reason string) error
	Get(ctx context.Context, id string) (*models.IncidentSession, error)
	List(ctx context.Context) ([]models.SessionSummary, error)
	Archived(ctx context.Context, limit int) ([]models.SessionSummary, error)
	Trace(ctx context.Context, id string) ([]models.ThoughtEntry, error)

	LockTarget(ctx context.Context, target string, ttl time.Duration) error
	UnlockTarget(ctx context.Context, target string) error
	LockedTargets(ctx context.Context) ([]string, error)

	SessionLatency(p float64) time.Duration
}

// SnapshotSource serves the golden-signal passthrough endpoint.
type SnapshotSource interface {
	GoldenSnapshot(ctx context.Context, service string) (*models.GoldenSnapshot, error)
}

// Handler wires HTTP routes to the controller.
type Handler struct {
	logger     *slog.Logger
	controller Controller
	signals    SnapshotSource
}

func NewHandler(logger *slog.Logger, controller Controller, signals SnapshotSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, controller: controller, signals: signals}
}

// Routes builds the chi router with the middleware stack and all endpoints.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(h.logger))
	r.Use(recoverer(h.logger))

	r.Get("/api/v1/health", h.health)

	r.Post("/api/v1/alerts", h.ingestAlert)
	r.Get("/api/v1/sessions", h.listSessions)
	r.Get("/api/v1/sessions/archive", h.listArchived)
	r.Get("/api/v1/sessions/{sessionID}", h.getSession)
	r.Post("/api/v1/sessions/{sessionID}/approval", h.resolveApproval)
	r.Delete("/api/v1/sessions/{sessionID}", h.abortSession)

	r.Get("/api/v1/locks", h.listLocks)
	r.Put("/api/v1/locks/{target}", h.lockTarget)
	r.Delete("/api/v1/locks/{target}", h.unlockTarget)

	r.Get("/api/v1/metrics/snapshot", h.metricsSnapshot)

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"session_p50": h.controller.SessionLatency(50).String(),
		"session_p95": h.controller.SessionLatency(95).String(),
	})
}

func (h *Handler) ingestAlert(w http.ResponseWriter, r *http.Request) {
	var payload models.AlertPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed alert payload")
		return
	}
	sess, err := h.controller.StartSession(r.Context(), payload)
	if err != nil {
		if errors.Is(err, utils.ErrValidation) {
			respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		h.logger.Error("alert ingestion failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not open session")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"session_id": sess.ID,
		"phase":      sess.Phase,
	})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.controller.List(r.Context())
	if err != nil {
		h.logger.Error("session list failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not list sessions")
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

func (h *Handler) listArchived(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	summaries, err := h.controller.Archived(r.Context(), limit)
	if err != nil {
		h.logger.Error("archive list failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not list archive")
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

type sessionDetail struct {
	*models.IncidentSession
	PendingApproval bool                  `json:"pending_approval"`
	Trace           []models.ThoughtEntry `json:"trace"`
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, err := h.controller.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "no such session")
			return
		}
		h.logger.Error("session fetch failed", slog.String("session", id), slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not load session")
		return
	}
	trace, err := h.controller.Trace(r.Context(), id)
	if err != nil {
		h.logger.Warn("trace fetch failed", slog.String("session", id), slog.Any("error", err))
	}
	respondJSON(w, http.StatusOK, sessionDetail{
		IncidentSession: sess,
		PendingApproval: sess.Phase == models.PhaseAwaitingApproval,
		Trace:           trace,
	})
}

func (h *Handler) resolveApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var sig models.ApprovalSignal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed approval payload")
		return
	}
	switch err := h.controller.Signal(r.Context(), id, sig); {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]any{
			"session_id": id,
			"approved":   sig.Approved,
		})
	case errors.Is(err, utils.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no such session")
	case errors.Is(err, utils.ErrNoPendingApproval):
		respondError(w, http.StatusConflict, "NO_PENDING_APPROVAL", "session is not awaiting approval")
	default:
		h.logger.Error("approval signal failed", slog.String("session", id), slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not deliver approval")
	}
}

func (h *Handler) abortSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "aborted by operator"
	}
	switch err := h.controller.Abort(r.Context(), id, reason); {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "aborted"})
	case errors.Is(err, utils.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no such session")
	case errors.Is(err, utils.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "ALREADY_TERMINAL", "session already finished")
	default:
		h.logger.Error("abort failed", slog.String("session", id), slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not abort session")
	}
}

func (h *Handler) listLocks(w http.ResponseWriter, r *http.Request) {
	targets, err := h.controller.LockedTargets(r.Context())
	if err != nil {
		h.logger.Error("lock list failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not list locks")
		return
	}
	respondJSON(w, http.StatusOK, targets)
}

func (h *Handler) lockTarget(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "ttl must be a duration such as 30m")
			return
		}
		ttl = parsed
	}
	if err := h.controller.LockTarget(r.Context(), target, ttl); err != nil {
		if errors.Is(err, utils.ErrValidation) {
			respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		h.logger.Error("lock failed", slog.String("target", target), slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not lock target")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"target": target, "status": "locked"})
}

func (h *Handler) unlockTarget(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	if err := h.controller.UnlockTarget(r.Context(), target); err != nil {
		h.logger.Error("unlock failed", slog.String("target", target), slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not unlock target")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"target": target, "status": "unlocked"})
}

// metricsSnapshot passes the external golden-signal reading straight through.
// When the source is down the caller gets an explicit unavailable error, never
// a synthesized reading.
func (h *Handler) metricsSnapshot(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "service query parameter is required")
		return
	}
	snap, err := h.signals.GoldenSnapshot(r.Context(), service)
	if err != nil {
		h.logger.Warn("golden snapshot unavailable", slog.String("service", service), slog.Any("error", err))
		respondError(w, http.StatusServiceUnavailable, "SIGNALS_UNAVAILABLE", "metrics source is unavailable")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}
