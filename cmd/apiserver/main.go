// Command apiserver boots the REST glue: Postgres pool, Temporal engine
// client, and the chi router. It never registers
// workflows or activities — that is cmd/worker's job, per SPEC_FULL.md §11's
// split between the two processes.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/agentware/agentctl/httpapi"
	"github.com/agentware/agentctl/internal/config"
	"github.com/agentware/agentctl/store/postgres"
	"github.com/agentware/agentctl/telemetry"

	enginetemporal "github.com/agentware/agentctl/engine/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync()
	logger := telemetry.NewZapLogger(zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(ctx, "open database", "err", err)
		os.Exit(1)
	}
	if err := postgres.Migrate(db); err != nil {
		logger.Error(ctx, "migrate database", "err", err)
		os.Exit(1)
	}

	eng, err := enginetemporal.New(enginetemporal.Options{
		ClientOptions: &client.Options{HostPort: cfg.TemporalAddress},
		WorkerOptions: enginetemporal.WorkerOptions{TaskQueue: cfg.TemporalQueue},
		// The API server only starts/signals/cancels workflow executions; it
		// never registers a worker to run them, so worker auto-start would be
		// dead weight here.
		DisableWorkerAutoStart: true,
		Logger:                 logger,
	})
	if err != nil {
		logger.Error(ctx, "create temporal engine", "err", err)
		os.Exit(1)
	}
	defer eng.Close()

	server := &httpapi.Server{
		Agents:           postgres.NewAgentRepository(db),
		Tasks:            postgres.NewTaskRepository(db),
		Engine:           eng,
		Logger:           logger,
		DefaultTaskQueue: cfg.TemporalQueue,
		Namespace:        cfg.AgentsNamespace,
		TaskTimeout:      10 * time.Second,
		ExecutionTimeout: 24 * time.Hour,
	}

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(server),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "apiserver listening", "addr", cfg.HTTPAddr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error(ctx, "http server exited", "err", err)
		os.Exit(1)
	}
}
