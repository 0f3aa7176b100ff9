package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, ":2112", cfg.Server.MetricsAddress)
	assert.Equal(t, 3, cfg.Orchestrator.MaxCycles)
	assert.Equal(t, 20*time.Second, cfg.Orchestrator.InvestigatorTimeout)
	assert.Zero(t, cfg.Orchestrator.ApprovalTimeout)
	assert.Equal(t, 0.4, cfg.Policy.AutoApproveThreshold)
	assert.Equal(t, 0.97, cfg.Policy.RejectCeiling)
	assert.False(t, cfg.Store.Redis.Enabled)
	assert.Equal(t, "@every 30s", cfg.Jobs.ApprovalSweepSchedule)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9999"
clients:
  signals:
    baseURL: "http://signals.internal:8080"
orchestrator:
  maxCycles: 5
  approvalTimeout: 45m
store:
  redis:
    enabled: true
    addr: "redis.internal:6379"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "http://signals.internal:8080", cfg.Clients.Signals.BaseURL)
	assert.Equal(t, 5, cfg.Orchestrator.MaxCycles)
	assert.Equal(t, 45*time.Minute, cfg.Orchestrator.ApprovalTimeout)
	assert.True(t, cfg.Store.Redis.Enabled)
	// Untouched sections keep their defaults.
	assert.Equal(t, "/api/v1/signals/metrics", cfg.Clients.Signals.MetricsPath)
	assert.Equal(t, 64, cfg.Orchestrator.MaxConcurrentSessions)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RESPONDER_SERVER_ADDRESS", ":7070")
	t.Setenv("RESPONDER_SIGNALS_BASE_URL", "http://localhost:9191")
	t.Setenv("RESPONDER_MAX_CYCLES", "2")
	t.Setenv("RESPONDER_APPROVAL_TIMEOUT", "10m")
	t.Setenv("RESPONDER_AUTO_APPROVE_PLANS", "true")
	t.Setenv("RESPONDER_REDIS_ADDR", "cache.internal:6379")
	t.Setenv("RESPONDER_LOG_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "http://localhost:9191", cfg.Clients.Signals.BaseURL)
	assert.Equal(t, 2, cfg.Orchestrator.MaxCycles)
	assert.Equal(t, 10*time.Minute, cfg.Orchestrator.ApprovalTimeout)
	assert.True(t, cfg.Orchestrator.AutoApprovePlans)
	assert.True(t, cfg.Store.Redis.Enabled)
	assert.Equal(t, "cache.internal:6379", cfg.Store.Redis.Addr)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("RESPONDER_MAX_CYCLES", "0")
	_, err := Load("")
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
