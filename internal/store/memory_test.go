package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/utils"
)

func sampleSession(id string, phase models.Phase) *models.IncidentSession {
	now := time.Now().UTC()
	return &models.IncidentSession{
		ID:        id,
		Phase:     phase,
		Cycle:     1,
		CreatedAt: now,
		UpdatedAt: now,
		Alert:     models.AlertContext{Name: "HighLatencyP95", Severity: models.SeverityHigh},
		Approval:  models.ApprovalNotRequired,
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sess := sampleSession("s1", models.PhaseObserve)
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != "s1" || loaded.Phase != models.PhaseObserve {
		t.Fatalf("unexpected session: %+v", loaded)
	}

	// Stored copy is isolated from later mutation.
	sess.Phase = models.PhaseAct
	loaded, _ = s.LoadSession(ctx, "s1")
	if loaded.Phase != models.PhaseObserve {
		t.Fatal("store returned an aliased session")
	}

	if _, err := s.LoadSession(ctx, "missing"); !errors.Is(err, utils.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStoreTrace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	entries := []models.ThoughtEntry{
		{Actor: "observer", Text: "fanning out"},
		{Actor: "reflector", Text: "confidence 0.8"},
	}
	if err := s.AppendTrace(ctx, "s1", entries...); err != nil {
		t.Fatalf("append: %v", err)
	}
	trace, err := s.Trace(ctx, "s1")
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if len(trace) != 2 || trace[1].Actor != "reflector" {
		t.Fatalf("unexpected trace: %+v", trace)
	}
}

func TestMemoryStoreLocks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.LockTarget(ctx, "checkout", 0); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := s.LockTarget(ctx, "billing", time.Millisecond); err != nil {
		t.Fatalf("lock: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	targets, err := s.LockedTargets(ctx)
	if err != nil {
		t.Fatalf("locked targets: %v", err)
	}
	if len(targets) != 1 || targets[0] != "checkout" {
		t.Fatalf("expired lock should drop out: %v", targets)
	}

	if err := s.UnlockTarget(ctx, "checkout"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	targets, _ = s.LockedTargets(ctx)
	if len(targets) != 0 {
		t.Fatalf("expected no locks, got %v", targets)
	}
}
