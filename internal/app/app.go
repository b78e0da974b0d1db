// Package app wires the master process together: config, state store,
// backend, workspace, and the scheduler's two background loops, grounded
// in the teacher's Run/runAPI/runWorker split (here: runScheduler replaces
// runWorker; no REST API surface is in scope, so only a bare health/metrics
// endpoint is kept).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AtosCodex/zoe/internal/backend"
	"github.com/AtosCodex/zoe/internal/backend/kubernetes"
	"github.com/AtosCodex/zoe/internal/backend/swarm"
	"github.com/AtosCodex/zoe/internal/config"
	"github.com/AtosCodex/zoe/internal/scheduler"
	"github.com/AtosCodex/zoe/internal/state"
	"github.com/AtosCodex/zoe/internal/telemetry"
	"github.com/AtosCodex/zoe/internal/workspace"
)

// Run is the master process entry point. It connects to infrastructure,
// constructs the configured backend, and starts the scheduler.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting zoe-master",
		"mode", cfg.Mode,
		"backend", cfg.Backend,
		"policy", cfg.SchedulerPolicy,
		"listen", cfg.ListenAddr(),
	)

	store, err := state.Open(ctx, cfg.DatabaseURL(), cfg.DeploymentName, cfg.MigrationsDir, logger)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	if err := store.Init(ctx, cfg.ForceSchemaInit); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	logger.Info("schema ready", "schema", state.SchemaName(cfg.DeploymentName))

	if cfg.Mode == "initdb" {
		return nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(telemetry.All()...)

	be, err := newBackend(cfg, logger)
	if err != nil {
		return fmt.Errorf("constructing backend: %w", err)
	}
	if err := be.Init(ctx, store); err != nil {
		return fmt.Errorf("initializing backend: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := be.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down backend", "error", err)
		}
	}()

	ws := workspace.New(cfg.WorkspaceBasePath, cfg.WorkspaceDeploymentPath, logger)

	sched, err := scheduler.New(scheduler.Options{
		Policy:              scheduler.Policy(cfg.SchedulerPolicy),
		OverlayNetworkName:  cfg.OverlayNetworkName,
		DeploymentName:      cfg.DeploymentName,
		MaxMemoryLimitBytes: float64(cfg.MaxMemoryLimitBytes()),
		MaxCoreLimit:        float64(cfg.MaxCoreLimit),
	}, store, be, ws, logger)
	if err != nil {
		return fmt.Errorf("constructing scheduler: %w", err)
	}

	if err := sched.Seed(ctx); err != nil {
		return fmt.Errorf("seeding scheduler from state store: %w", err)
	}

	errCh := make(chan error, 3)

	go func() {
		errCh <- sched.Run(ctx)
	}()
	go func() {
		errCh <- sched.RunCoreLimitAdjuster(ctx)
	}()
	go func() {
		errCh <- runHealthServer(ctx, cfg.ListenAddr(), registry, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down zoe-master")
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func newBackend(cfg *config.Config, logger *slog.Logger) (backend.Backend, error) {
	switch cfg.Backend {
	case "kubernetes":
		return kubernetes.New(kubernetes.Options{
			APIURL:    cfg.K8sAPIURL,
			Token:     cfg.K8sToken,
			Namespace: cfg.DeploymentName,
		}, logger)
	case "swarm":
		return swarm.New(swarm.Options{
			ManagerURL:   cfg.SwarmManagerURL,
			ZKLeaderPath: cfg.SwarmZKLeaderPath,
			GELFAddress:  cfg.GELFAddress,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

func runHealthServer(ctx context.Context, addr string, registry *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("health/metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- fmt.Errorf("http server: %w", err)
			return
		}
		srvErr <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-srvErr:
		return err
	}
}
