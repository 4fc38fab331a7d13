// Package config loads and validates the service's configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the fully validated runtime configuration for the orchestrator
// service.
type Config struct {
	GitHubWebhookSecret string `mapstructure:"github_webhook_secret"`
	GitHubToken         string `mapstructure:"github_token"`
	GitHubBaseURL       string `mapstructure:"github_base_url"`

	WorkspaceBasePath      string        `mapstructure:"workspace_base_path"`
	WorkspaceRetentionDays int           `mapstructure:"workspace_retention_days"`
	WorkspaceGCInterval    time.Duration `mapstructure:"workspace_gc_interval"`
	WorkspaceDirMode       uint32        `mapstructure:"workspace_dir_mode"`

	CLIPath           string        `mapstructure:"cli_path"`
	CLITimeoutSeconds time.Duration `mapstructure:"cli_timeout_seconds"`

	LLMURL         string  `mapstructure:"llm_url"`
	LLMModel       string  `mapstructure:"llm_model"`
	LLMTemperature float64 `mapstructure:"llm_temperature"`

	DatabaseURL  string `mapstructure:"database_url"`
	PoolMinConns int32  `mapstructure:"pool_min_conns"`
	PoolMaxConns int32  `mapstructure:"pool_max_conns"`

	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	HTTPReadTimeout     time.Duration `mapstructure:"http_read_timeout"`
	HTTPWriteTimeout    time.Duration `mapstructure:"http_write_timeout"`
	HTTPShutdownTimeout time.Duration `mapstructure:"http_shutdown_timeout"`

	MaxVersionConflictRetries int    `mapstructure:"max_version_conflict_retries"`
	MetricsNamespace          string `mapstructure:"metrics_namespace"`

	CloneTimeoutSeconds time.Duration `mapstructure:"clone_timeout_seconds"`
	GitHubRetryAttempts int           `mapstructure:"github_retry_attempts"`

	KnowledgeVectorStoreURL string `mapstructure:"knowledge_vector_store_url"`
	KnowledgeEmbeddingURL   string `mapstructure:"knowledge_embedding_url"`
	KnowledgeCodeGraphURL   string `mapstructure:"knowledge_code_graph_url"`
}

// Validate enforces the required fields and numeric ranges the service
// needs before it can start.
func (c *Config) Validate() error {
	if c.GitHubWebhookSecret == "" {
		return fmt.Errorf("github_webhook_secret is required")
	}
	if c.GitHubToken == "" {
		return fmt.Errorf("github_token is required")
	}
	if c.WorkspaceBasePath == "" {
		return fmt.Errorf("workspace_base_path is required")
	}
	if c.WorkspaceRetentionDays < 1 {
		return fmt.Errorf("workspace_retention_days must be >= 1")
	}
	if c.CLITimeoutSeconds < 1*time.Second {
		return fmt.Errorf("cli_timeout_seconds must be >= 1")
	}
	if c.LLMURL == "" {
		return fmt.Errorf("llm_url is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535")
	}
	return nil
}
