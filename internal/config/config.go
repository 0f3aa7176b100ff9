package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the responder service.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Clients      ClientsConfig      `yaml:"clients"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Policy       PolicyConfig       `yaml:"policy"`
	Plans        PlansConfig        `yaml:"plans"`
	Store        StoreConfig        `yaml:"store"`
	Jobs         JobsConfig         `yaml:"jobs"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ClientsConfig groups the external collaborator endpoints.
type ClientsConfig struct {
	Signals  SignalsClientConfig  `yaml:"signals"`
	Tools    ToolsClientConfig    `yaml:"tools"`
	Runbooks RunbooksClientConfig `yaml:"runbooks"`
}

// SignalsClientConfig configures access to the observability aggregation APIs
// (metrics, logs, infra state, recent commits, golden signals).
type SignalsClientConfig struct {
	BaseURL           string        `yaml:"baseURL"`
	MetricsPath       string        `yaml:"metricsPath"`
	LogsPath          string        `yaml:"logsPath"`
	InfraPath         string        `yaml:"infraPath"`
	CommitsPath       string        `yaml:"commitsPath"`
	GoldenSignalsPath string        `yaml:"goldenSignalsPath"`
	Timeout           time.Duration `yaml:"timeout"`
}

// ToolsClientConfig configures the remediation tool gateway.
type ToolsClientConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	InvokePath string        `yaml:"invokePath"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RunbooksClientConfig configures the runbook index used by the planner and
// the knowledge-base investigator.
type RunbooksClientConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// OrchestratorConfig bounds the incident loop.
type OrchestratorConfig struct {
	MaxCycles             int           `yaml:"maxCycles"`
	InvestigatorTimeout   time.Duration `yaml:"investigatorTimeout"`
	ApprovalTimeout       time.Duration `yaml:"approvalTimeout"`
	VerifyDelay           time.Duration `yaml:"verifyDelay"`
	MinProceedConfidence  float64       `yaml:"minProceedConfidence"`
	AutoApprovePlans      bool          `yaml:"autoApprovePlans"`
	SessionSnapshotTTL    time.Duration `yaml:"sessionSnapshotTTL"`
	MaxConcurrentSessions int           `yaml:"maxConcurrentSessions"`
}

// PolicyConfig controls the deterministic policy gate.
type PolicyConfig struct {
	Path                 string  `yaml:"path"`
	AutoApproveThreshold float64 `yaml:"autoApproveThreshold"`
	RejectCeiling        float64 `yaml:"rejectCeiling"`
}

// PlansConfig controls plan-pack loading for the planner.
type PlansConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig controls hot-state and archive persistence.
type StoreConfig struct {
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig controls the hot-state store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig controls the cold archive.
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// JobsConfig controls the periodic schedules (cron expressions).
type JobsConfig struct {
	ApprovalSweepSchedule string `yaml:"approvalSweepSchedule"`
	ArchiveSweepSchedule  string `yaml:"archiveSweepSchedule"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("RESPONDER_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Orchestrator.MaxCycles < 1 {
		return nil, fmt.Errorf("orchestrator.maxCycles must be at least 1")
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			Signals: SignalsClientConfig{
				MetricsPath:       "/api/v1/signals/metrics",
				LogsPath:          "/api/v1/signals/logs",
				InfraPath:         "/api/v1/signals/infra",
				CommitsPath:       "/api/v1/signals/commits",
				GoldenSignalsPath: "/api/v1/signals/golden",
				Timeout:           5 * time.Second,
			},
			Tools: ToolsClientConfig{
				InvokePath: "/api/v1/tools/invoke",
				Timeout:    15 * time.Second,
			},
			Runbooks: RunbooksClientConfig{Timeout: 5 * time.Second},
		},
		Orchestrator: OrchestratorConfig{
			MaxCycles:             3,
			InvestigatorTimeout:   20 * time.Second,
			ApprovalTimeout:       0, // no expiry by default
			VerifyDelay:           60 * time.Second,
			MinProceedConfidence:  0.6,
			AutoApprovePlans:      false,
			SessionSnapshotTTL:    24 * time.Hour,
			MaxConcurrentSessions: 64,
		},
		Policy: PolicyConfig{
			AutoApproveThreshold: 0.4,
			RejectCeiling:        0.97,
		},
		Store: StoreConfig{},
		Jobs: JobsConfig{
			ApprovalSweepSchedule: "@every 30s",
			ArchiveSweepSchedule:  "@every 5m",
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RESPONDER_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("RESPONDER_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("RESPONDER_SIGNALS_BASE_URL"); v != "" {
		cfg.Clients.Signals.BaseURL = v
	}
	if v := os.Getenv("RESPONDER_TOOLS_BASE_URL"); v != "" {
		cfg.Clients.Tools.BaseURL = v
	}
	if v := os.Getenv("RESPONDER_RUNBOOKS_ENDPOINT"); v != "" {
		cfg.Clients.Runbooks.Endpoint = v
	}
	if v := os.Getenv("RESPONDER_RUNBOOKS_API_KEY"); v != "" {
		cfg.Clients.Runbooks.APIKey = v
	}
	if v := os.Getenv("RESPONDER_MAX_CYCLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.MaxCycles = n
		}
	}
	if v := os.Getenv("RESPONDER_INVESTIGATOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Orchestrator.InvestigatorTimeout = d
		}
	}
	if v := os.Getenv("RESPONDER_APPROVAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Orchestrator.ApprovalTimeout = d
		}
	}
	if v := os.Getenv("RESPONDER_VERIFY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Orchestrator.VerifyDelay = d
		}
	}
	if v := os.Getenv("RESPONDER_AUTO_APPROVE_PLANS"); v != "" {
		cfg.Orchestrator.AutoApprovePlans = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("RESPONDER_POLICY_PATH"); v != "" {
		cfg.Policy.Path = v
	}
	if v := os.Getenv("RESPONDER_PLANS_PATH"); v != "" {
		cfg.Plans.Path = v
	}
	if v := os.Getenv("RESPONDER_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
		cfg.Store.Redis.Enabled = true
	}
	if v := os.Getenv("RESPONDER_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("RESPONDER_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Store.Redis.DB = db
		}
	}
	if v := os.Getenv("RESPONDER_POSTGRES_DSN"); v != "" {
		cfg.Store.Postgres.DSN = v
		cfg.Store.Postgres.Enabled = true
	}
	if v := os.Getenv("RESPONDER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RESPONDER_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
