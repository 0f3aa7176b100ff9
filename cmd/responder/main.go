package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/sentinelstack/responder/internal/api"
	"github.com/sentinelstack/responder/internal/config"
	"github.com/sentinelstack/responder/internal/engine"
	"github.com/sentinelstack/responder/internal/executor"
	"github.com/sentinelstack/responder/internal/investigators"
	"github.com/sentinelstack/responder/internal/metrics"
	"github.com/sentinelstack/responder/internal/orchestrator"
	"github.com/sentinelstack/responder/internal/repo"
	"github.com/sentinelstack/responder/internal/store"
	"github.com/sentinelstack/responder/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting responder", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	bootCtx := context.Background()

	var hot store.HotStore = store.NewMemoryStore()
	if cfg.Store.Redis.Enabled && cfg.Store.Redis.Addr != "" {
		redisStore, err := store.NewRedisStore(cfg.Store.Redis, cfg.Orchestrator.SessionSnapshotTTL)
		if err != nil {
			logger.Warn("redis unavailable, running on in-memory state", slog.Any("error", err))
		} else {
			hot = redisStore
		}
	}
	defer hot.Close()

	var cold store.ColdStore
	if cfg.Store.Postgres.Enabled && cfg.Store.Postgres.DSN != "" {
		archive, err := store.NewPostgresArchive(bootCtx, cfg.Store.Postgres.DSN)
		if err != nil {
			logger.Warn("postgres archive unavailable", slog.Any("error", err))
		} else {
			cold = archive
			defer archive.Close()
		}
	}

	signalClient := repo.NewSignalClient(cfg.Clients.Signals)
	toolGateway := repo.NewToolGateway(cfg.Clients.Tools)
	runbookRepo := repo.NewRunbookRepo(cfg.Clients.Runbooks)

	registry := investigators.NewRegistry(
		logger,
		cfg.Orchestrator.InvestigatorTimeout,
		investigators.NewMetricsInvestigator(signalClient, 0),
		investigators.NewLogsInvestigator(signalClient),
		investigators.NewInfraInvestigator(signalClient),
		investigators.NewVersionControlInvestigator(signalClient),
		investigators.NewRunbookInvestigator(runbookRepo),
	)

	planPack, err := engine.NewPlanPack(cfg.Plans.Path, logger)
	if err != nil {
		logger.Error("failed to load plan pack", slog.Any("error", err))
		os.Exit(1)
	}
	gate, err := engine.NewPolicyGate(cfg.Policy.Path, cfg.Policy.AutoApproveThreshold, cfg.Policy.RejectCeiling)
	if err != nil {
		logger.Error("failed to load policy", slog.Any("error", err))
		os.Exit(1)
	}

	orch := orchestrator.New(logger, cfg.Orchestrator, orchestrator.Deps{
		Investigators: registry,
		Reflector:     engine.NewReflector(logger, cfg.Orchestrator.MinProceedConfidence),
		Planner:       engine.NewPlanner(logger, planPack),
		Gate:          gate,
		Executor:      executor.New(logger, toolGateway),
		Verifier:      engine.NewVerifier(logger, signalClient, cfg.Orchestrator.VerifyDelay),
		Signals:       signalClient,
		Hot:           hot,
		Cold:          cold,
	})
	defer orch.Close()

	if err := orch.Resume(bootCtx); err != nil {
		logger.Warn("could not resume persisted sessions", slog.Any("error", err))
	}

	jobs := cron.New()
	if cfg.Jobs.ApprovalSweepSchedule != "" {
		if _, err := jobs.AddFunc(cfg.Jobs.ApprovalSweepSchedule, func() {
			orch.SweepApprovals(context.Background())
		}); err != nil {
			logger.Error("invalid approval sweep schedule", slog.Any("error", err))
			os.Exit(1)
		}
	}
	if cfg.Jobs.ArchiveSweepSchedule != "" {
		if _, err := jobs.AddFunc(cfg.Jobs.ArchiveSweepSchedule, func() {
			orch.SweepOrphans(context.Background())
		}); err != nil {
			logger.Error("invalid archive sweep schedule", slog.Any("error", err))
			os.Exit(1)
		}
	}
	jobs.Start()
	defer jobs.Stop()

	handler := api.NewHandler(logger, orch, signalClient)
	server, err := api.NewServer(cfg.Server, handler.Routes())
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("api server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("api server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("responder stopped")
}
