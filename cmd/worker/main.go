// Command worker boots the Platform Port, an LLM provider, the
// Conversational State Service, and the Temporal engine, then registers the
// Build and Task workflows plus the Activity Layer and starts the Worker
// Host (C7). Per SPEC_FULL.md §11, this is the only process that registers
// workflows/activities — cmd/apiserver only starts/signals executions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/agentware/agentctl/activities"
	enginetemporal "github.com/agentware/agentctl/engine/temporal"
	"github.com/agentware/agentctl/internal/config"
	"github.com/agentware/agentctl/llm"
	"github.com/agentware/agentctl/llm/anthropic"
	"github.com/agentware/agentctl/llm/openai"
	"github.com/agentware/agentctl/platform/k8s"
	"github.com/agentware/agentctl/state"
	"github.com/agentware/agentctl/state/redis"
	"github.com/agentware/agentctl/store/postgres"
	"github.com/agentware/agentctl/telemetry"
	agentworker "github.com/agentware/agentctl/worker"
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
	metrics := telemetry.NewPromMetrics(prometheus.NewRegistry())
	tracer := telemetry.NewOtelTracer("agentctl-worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(ctx, "open database", "err", err)
		os.Exit(1)
	}

	stateStore, err := redis.New(redis.Options{URL: cfg.RedisURL})
	if err != nil {
		logger.Error(ctx, "connect redis", "err", err)
		os.Exit(1)
	}

	k8sClient, err := newKubernetesClient()
	if err != nil {
		logger.Error(ctx, "build kubernetes client", "err", err)
		os.Exit(1)
	}

	llmProvider, err := newLLMProvider(cfg)
	if err != nil {
		logger.Error(ctx, "configure llm provider", "err", err)
		os.Exit(1)
	}

	eng, err := enginetemporal.New(enginetemporal.Options{
		ClientOptions: &client.Options{HostPort: cfg.TemporalAddress},
		WorkerOptions: enginetemporal.WorkerOptions{
			TaskQueue: cfg.TemporalQueue,
			Options: worker.Options{
				MaxConcurrentActivityExecutionSize: cfg.WorkerMaxActivitiesPerWorker,
				Identity:                           agentworker.BuildID(),
			},
		},
		DisableWorkerAutoStart: true,
		Logger:                 logger,
		Metrics:                metrics,
		Tracer:                 tracer,
	})
	if err != nil {
		logger.Error(ctx, "create temporal engine", "err", err)
		os.Exit(1)
	}
	defer eng.Close()

	deps := &activities.Deps{
		Platform:                k8s.New(k8sClient),
		State:                   state.NewService(stateStore),
		LLM:                     llmProvider,
		Agents:                  postgres.NewAgentRepository(db),
		Tasks:                   postgres.NewTaskRepository(db),
		Logger:                  logger,
		RegistryURL:             cfg.BuildRegistryURL,
		AgentsNamespace:         cfg.AgentsNamespace,
		BuildContextPVCName:     cfg.BuildContextPVCName,
		BuildContextsPath:       cfg.BuildContextsPath,
		BuildRegistrySecretName: cfg.BuildRegistrySecretName,
		ServicePort:             8080,
	}

	host := agentworker.New(agentworker.Options{
		Engine:                  eng,
		Deps:                    deps,
		MaxConcurrentActivities: cfg.WorkerMaxActivitiesPerWorker,
		HealthAddr:              cfg.HealthAddr,
		Metrics:                 metrics,
	})
	if err := host.Register(ctx); err != nil {
		logger.Error(ctx, "register worker host", "err", err)
		os.Exit(1)
	}

	logger.Info(ctx, "worker starting", "build_id", host.BuildID(), "health_addr", cfg.HealthAddr)
	go func() {
		<-ctx.Done()
		host.Stop(context.Background())
	}()
	if err := host.Start(ctx); err != nil {
		logger.Error(ctx, "worker host exited", "err", err)
		os.Exit(1)
	}
}

func newKubernetesClient() (kubernetes.Interface, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			kubeconfig = os.Getenv("HOME") + "/.kube/config"
		}
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig: %w", err)
		}
	}
	return kubernetes.NewForConfig(restCfg)
}

func newLLMProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		return anthropic.NewFromAPIKey(cfg.AnthropicAPIKey, 4096)
	default:
		return openai.NewFromAPIKey(cfg.OpenAIAPIKey)
	}
}
