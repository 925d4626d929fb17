// Package config loads the control plane's configuration from environment
// variables, with an optional YAML overlay layered underneath them. No
// library in the example pack ships a generalized env-struct binder, so
// this is implemented directly against os.LookupEnv with small typed
// parsing helpers — see DESIGN.md for why that stdlib-only choice is
// justified here rather than treated as a gap.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the control plane's processes need, populated
// once at boot and passed by reference — never read from the environment
// again after Load returns.
type Config struct {
	TemporalAddress  string `yaml:"temporal_address"`
	TemporalQueue    string `yaml:"temporal_queue"`
	RedisURL         string `yaml:"redis_url"`
	DatabaseURL      string `yaml:"database_url"`
	BuildRegistryURL string `yaml:"build_registry_url"`

	BuildContextsPath      string `yaml:"build_contexts_path"`
	BuildContextPVCName    string `yaml:"build_context_pvc_name"`
	BuildRegistrySecretName string `yaml:"build_registry_secret_name"`

	AgentsNamespace string `yaml:"agents_namespace"`

	WorkerMaxActivitiesPerWorker int `yaml:"worker_max_activities_per_worker"`
	WorkerActivityThreadPoolSize int `yaml:"worker_activity_thread_pool_size"`

	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMProvider     string `yaml:"llm_provider"`

	HTTPAddr    string        `yaml:"http_addr"`
	HealthAddr  string        `yaml:"health_addr"`
	BuildPollInterval time.Duration `yaml:"-"`
}

// Load reads configuration from AGENTCTL_CONFIG_FILE (if set, as a YAML
// overlay) and then from environment variables, which always win. Defaults
// match spec.md §5's stated timeout/concurrency defaults.
func Load() (*Config, error) {
	cfg := &Config{
		TemporalQueue:                "agentctl-default",
		AgentsNamespace:              "default",
		WorkerMaxActivitiesPerWorker: 10,
		WorkerActivityThreadPoolSize: 10,
		HTTPAddr:                     ":8080",
		HealthAddr:                   ":9090",
		BuildPollInterval:            5 * time.Second,
	}

	if path := os.Getenv("AGENTCTL_CONFIG_FILE"); path != "" {
		if err := loadYAMLOverlay(path, cfg); err != nil {
			return nil, fmt.Errorf("config: load overlay %s: %w", path, err)
		}
	}

	cfg.TemporalAddress = firstNonEmpty(os.Getenv("TEMPORAL_ADDRESS"), cfg.TemporalAddress)
	cfg.RedisURL = firstNonEmpty(os.Getenv("REDIS_URL"), cfg.RedisURL)
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), cfg.DatabaseURL)
	cfg.BuildRegistryURL = firstNonEmpty(os.Getenv("BUILD_REGISTRY_URL"), cfg.BuildRegistryURL)
	cfg.BuildContextsPath = firstNonEmpty(os.Getenv("BUILD_CONTEXTS_PATH"), cfg.BuildContextsPath)
	cfg.BuildContextPVCName = firstNonEmpty(os.Getenv("BUILD_CONTEXT_PVC_NAME"), cfg.BuildContextPVCName)
	cfg.BuildRegistrySecretName = firstNonEmpty(os.Getenv("BUILD_REGISTRY_SECRET_NAME"), cfg.BuildRegistrySecretName)
	cfg.AgentsNamespace = firstNonEmpty(os.Getenv("AGENTS_NAMESPACE"), cfg.AgentsNamespace)
	cfg.OpenAIAPIKey = firstNonEmpty(os.Getenv("OPENAI_API_KEY"), cfg.OpenAIAPIKey)
	cfg.AnthropicAPIKey = firstNonEmpty(os.Getenv("ANTHROPIC_API_KEY"), cfg.AnthropicAPIKey)
	cfg.LLMProvider = firstNonEmpty(os.Getenv("AGENTCTL_LLM_PROVIDER"), cfg.LLMProvider, "openai")

	if v, err := intEnv("TEMPORAL_WORKER_MAX_ACTIVITIES_PER_WORKER"); err != nil {
		return nil, err
	} else if v != 0 {
		cfg.WorkerMaxActivitiesPerWorker = v
	}
	if v, err := intEnv("TEMPORAL_WORKER_ACTIVITY_THREAD_POOL_SIZE"); err != nil {
		return nil, err
	} else if v != 0 {
		cfg.WorkerActivityThreadPoolSize = v
	}

	if cfg.TemporalAddress == "" {
		return nil, fmt.Errorf("config: TEMPORAL_ADDRESS is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	return cfg, nil
}

func loadYAMLOverlay(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, cfg)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intEnv(name string) (int, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", name, err)
	}
	return v, nil
}
