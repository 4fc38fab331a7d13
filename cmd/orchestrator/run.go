package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/archon-run/orchestrator-pipeline/internal/classifier"
	"github.com/archon-run/orchestrator-pipeline/internal/clarification"
	"github.com/archon-run/orchestrator-pipeline/internal/config"
	"github.com/archon-run/orchestrator-pipeline/internal/contextbuilder"
	"github.com/archon-run/orchestrator-pipeline/internal/events"
	"github.com/archon-run/orchestrator-pipeline/internal/githubclient"
	"github.com/archon-run/orchestrator-pipeline/internal/httpapi"
	"github.com/archon-run/orchestrator-pipeline/internal/knowledge"
	"github.com/archon-run/orchestrator-pipeline/internal/logging"
	"github.com/archon-run/orchestrator-pipeline/internal/orchestrator"
	"github.com/archon-run/orchestrator-pipeline/internal/prcreator"
	"github.com/archon-run/orchestrator-pipeline/internal/provisioner"
	"github.com/archon-run/orchestrator-pipeline/internal/runner"
	"github.com/archon-run/orchestrator-pipeline/internal/scheduler"
	"github.com/archon-run/orchestrator-pipeline/internal/store/postgres"
	"github.com/archon-run/orchestrator-pipeline/internal/webhook"
)

var serveConfigFile string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the webhook server and pipeline workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(context.Background())
		},
	}
	cmd.Flags().StringVar(&serveConfigFile, "config", "", "path to a YAML/TOML/JSON config file (optional, env vars always apply)")
	return cmd
}

func runServe(parentCtx context.Context) error {
	v := config.NewViperInstance()
	if err := config.BindEnvironmentVariables(v); err != nil {
		return fmt.Errorf("bind environment variables: %w", err)
	}
	if serveConfigFile != "" {
		v.SetConfigFile(serveConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", serveConfigFile, err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting orchestrator",
		zap.String("host", cfg.Host), zap.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := postgres.Migrate(cfg.DatabaseURL, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MinConns:       cfg.PoolMinConns,
		MaxConns:       cfg.PoolMaxConns,
		ConnectTimeout: 10 * time.Second,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	repo := postgres.New(pool, logger)
	deduper := postgres.NewDeliveryDeduper(pool, logger)

	gh, err := githubclient.New(githubclient.Config{
		Token:         cfg.GitHubToken,
		BaseURL:       cfg.GitHubBaseURL,
		RetryAttempts: cfg.GitHubRetryAttempts,
	}, logger)
	if err != nil {
		return fmt.Errorf("build github client: %w", err)
	}

	cl := classifier.New(classifier.Config{
		BaseURL:     cfg.LLMURL,
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
	}, logger)

	clarifier := clarification.New(gh, logger)

	prov := provisioner.New(provisioner.Config{
		BasePath:      cfg.WorkspaceBasePath,
		DirMode:       os.FileMode(cfg.WorkspaceDirMode),
		CloneTimeout:  cfg.CloneTimeoutSeconds,
		RetentionDays: cfg.WorkspaceRetentionDays,
	}, logger)

	var knowledgeProvider contextbuilder.KnowledgeProvider = knowledge.NoOpProvider{}
	if cfg.KnowledgeVectorStoreURL != "" || cfg.KnowledgeCodeGraphURL != "" {
		knowledgeProvider = knowledge.New(knowledge.Config{
			VectorStoreURL: cfg.KnowledgeVectorStoreURL,
			EmbeddingURL:   cfg.KnowledgeEmbeddingURL,
			CodeGraphURL:   cfg.KnowledgeCodeGraphURL,
		}, logger)
	}
	cb := contextbuilder.New(knowledgeProvider, logger)

	cliRunner := runner.New(cfg.CLIPath, cfg.CLITimeoutSeconds)
	prCreator := prcreator.New(gh, logger)

	registry := prometheus.NewRegistry()
	metricsSink := events.NewMetricsSink(registry, cfg.MetricsNamespace)
	emitter := events.NewCompositeSink(logger, events.NewLogSink(logger), metricsSink)

	orch := orchestrator.New(
		repo, cl, clarifier, prov, cb, cliRunner, gh, prCreator, emitter,
		orchestrator.Config{
			MaxVersionConflictRetries: cfg.MaxVersionConflictRetries,
		},
		logger,
	)

	dispatch := func(e webhook.Event) {
		bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := orch.HandleWebhook(bgCtx, e); err != nil {
			logger.Error("webhook handling failed", zap.String("issue", fmt.Sprintf("%s/%s#%d", e.Owner, e.Repository, e.Number)), zap.Error(err))
		}
	}

	httpServer := httpapi.New(httpapi.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		ReadTimeout:     cfg.HTTPReadTimeout,
		WriteTimeout:    cfg.HTTPWriteTimeout,
		ShutdownTimeout: cfg.HTTPShutdownTimeout,
	}, repo, deduper, dispatch, registry, logger)

	sched := scheduler.New(prov, cfg.WorkspaceGCInterval, logger)

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Start() }()

	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go sched.Run(schedulerCtx)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server exited", zap.Error(err))
		}
	}

	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

