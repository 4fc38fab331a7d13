// Package classifier turns a GitHub issue's title, body, and labels into a
// structured classification verdict via an OpenAI-compatible chat
// completions endpoint. It never returns an error: any failure collapses
// into a default "unknown" verdict.
package classifier

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/archon-run/orchestrator-pipeline/internal/store"
)

var errNoChoices = errors.New("llm response contained no choices")

// Classifier is the single-operation contract the orchestrator depends on.
type Classifier interface {
	Classify(ctx context.Context, title, body string, labels []string) *store.Classification
}

// Config configures the LLM backend.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// LLMClassifier talks to any OpenAI-compatible chat completions endpoint,
// including self-hosted vLLM deployments.
type LLMClassifier struct {
	client      openai.Client
	model       string
	temperature float64
	logger      *zap.Logger
}

// New constructs an LLMClassifier.
func New(cfg Config, logger *zap.Logger) *LLMClassifier {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "not-needed"
	}
	client := openai.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(apiKey),
	)
	return &LLMClassifier{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger.With(zap.String("component", "classifier")),
	}
}

// Classify analyzes the issue and returns a verdict. On any failure
// (network, invalid JSON, validation) it returns a default "unknown"
// verdict carrying the failure reason in Reasoning rather than erroring.
func (c *LLMClassifier) Classify(ctx context.Context, title, body string, labels []string) *store.Classification {
	c.logger.Info("classifying issue", zap.String("title", title), zap.Int("label_count", len(labels)))

	verdict, err := c.perform(ctx, title, body, labels)
	if err != nil {
		c.logger.Warn("classification failed, returning default verdict", zap.Error(err))
		return defaultVerdict(err.Error())
	}

	c.logger.Info("issue classified",
		zap.String("issue_type", verdict.IssueType),
		zap.Int("completeness_score", verdict.CompletenessScore),
		zap.Int("requirements_count", len(verdict.Requirements)),
	)
	return verdict
}

func (c *LLMClassifier) perform(ctx context.Context, title, body string, labels []string) (*store.Classification, error) {
	userPrompt := buildUserPrompt(title, body, labels)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errNoChoices
	}

	raw, err := parseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return normalize(raw), nil
}
