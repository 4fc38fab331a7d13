package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		GitHubWebhookSecret: "s3cr3t",
		GitHubToken:         "ghp_token",
		WorkspaceBasePath:   "/var/lib/orchestrator/workspaces",
		WorkspaceRetentionDays: 7,
		CLITimeoutSeconds:      10 * time.Second,
		LLMURL:                 "http://localhost:8000/v1",
		DatabaseURL:            "postgres://localhost/orchestrator",
		Port:                   8080,
	}
}

func TestValidateAcceptsFullyPopulatedConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
	}{
		{"missing webhook secret", func(c *Config) { c.GitHubWebhookSecret = "" }},
		{"missing github token", func(c *Config) { c.GitHubToken = "" }},
		{"missing workspace path", func(c *Config) { c.WorkspaceBasePath = "" }},
		{"missing llm url", func(c *Config) { c.LLMURL = "" }},
		{"missing database url", func(c *Config) { c.DatabaseURL = "" }},
		{"retention days too low", func(c *Config) { c.WorkspaceRetentionDays = 0 }},
		{"cli timeout too low", func(c *Config) { c.CLITimeoutSeconds = 0 }},
		{"port too low", func(c *Config) { c.Port = 0 }},
		{"port too high", func(c *Config) { c.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
