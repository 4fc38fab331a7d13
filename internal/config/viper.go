package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// NewViperInstance builds a viper.Viper preloaded with the defaults that
// are safe to ship.
func NewViperInstance() *viper.Viper {
	v := viper.New()

	v.SetDefault("github_base_url", "https://api.github.com")
	v.SetDefault("workspace_retention_days", 7)
	v.SetDefault("workspace_gc_interval", "1h")
	v.SetDefault("workspace_dir_mode", 0755)
	v.SetDefault("cli_timeout_seconds", "600s")
	v.SetDefault("llm_temperature", 0.1)
	v.SetDefault("pool_min_conns", 2)
	v.SetDefault("pool_max_conns", 10)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "production")
	v.SetDefault("http_read_timeout", "10s")
	v.SetDefault("http_write_timeout", "10s")
	v.SetDefault("http_shutdown_timeout", "30s")
	v.SetDefault("max_version_conflict_retries", 3)
	v.SetDefault("metrics_namespace", "archon")
	v.SetDefault("clone_timeout_seconds", "300s")
	v.SetDefault("github_retry_attempts", 3)

	return v
}

var envVars = map[string]string{
	"github_webhook_secret":       "GITHUB_WEBHOOK_SECRET",
	"github_token":                "GITHUB_TOKEN",
	"github_base_url":             "GITHUB_BASE_URL",
	"workspace_base_path":         "WORKSPACE_BASE_PATH",
	"workspace_retention_days":    "WORKSPACE_RETENTION_DAYS",
	"workspace_gc_interval":       "WORKSPACE_GC_INTERVAL",
	"workspace_dir_mode":          "WORKSPACE_DIR_MODE",
	"cli_path":                    "CLI_PATH",
	"cli_timeout_seconds":         "CLI_TIMEOUT_SECONDS",
	"llm_url":                     "LLM_URL",
	"llm_model":                   "LLM_MODEL",
	"llm_temperature":             "LLM_TEMPERATURE",
	"database_url":                "DATABASE_URL",
	"pool_min_conns":              "POOL_MIN_CONNS",
	"pool_max_conns":              "POOL_MAX_CONNS",
	"host":                        "HOST",
	"port":                        "PORT",
	"log_level":                   "LOG_LEVEL",
	"log_format":                  "LOG_FORMAT",
	"http_read_timeout":           "HTTP_READ_TIMEOUT",
	"http_write_timeout":          "HTTP_WRITE_TIMEOUT",
	"http_shutdown_timeout":       "HTTP_SHUTDOWN_TIMEOUT",
	"max_version_conflict_retries": "MAX_VERSION_CONFLICT_RETRIES",
	"metrics_namespace":           "METRICS_NAMESPACE",
	"clone_timeout_seconds":       "CLONE_TIMEOUT_SECONDS",
	"github_retry_attempts":       "GITHUB_RETRY_ATTEMPTS",
	"knowledge_vector_store_url":  "KNOWLEDGE_VECTOR_STORE_URL",
	"knowledge_embedding_url":     "KNOWLEDGE_EMBEDDING_URL",
	"knowledge_code_graph_url":    "KNOWLEDGE_CODE_GRAPH_URL",
}

// BindEnvironmentVariables binds every configuration key to its ARCHON_-free
// environment variable name.
func BindEnvironmentVariables(v *viper.Viper) error {
	for key, env := range envVars {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

// Load reads environment-bound configuration (plus any config file already
// set on v) into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}
	return &cfg, nil
}
