// Package knowledge implements the optional two-layer context-retrieval
// provider: a vector store for semantic search and a code graph for
// structural traversal. Every failure mode degrades to empty output; the
// pipeline must work identically whether or not a knowledge backend is
// configured.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Provider matches internal/contextbuilder.KnowledgeProvider.
type Provider interface {
	Query(ctx context.Context, query string) (string, error)
}

// NoOpProvider always returns empty text. It is the default when no
// knowledge backend is configured.
type NoOpProvider struct{}

func (NoOpProvider) Query(ctx context.Context, query string) (string, error) { return "", nil }

// Config points at the optional backend services.
type Config struct {
	VectorStoreURL string
	EmbeddingURL   string
	CodeGraphURL   string
	TopK           int
	GraphDepth     int
}

// DefaultProvider combines semantic search against a vector store with
// graph traversal over the entities the search surfaces: search first
// narrows to the relevant code, then traversal pulls in its structural
// neighbors.
type DefaultProvider struct {
	vector *vectorStoreClient
	graph  *codeGraphClient
	topK   int
	depth  int
	logger *zap.Logger
}

// New builds a DefaultProvider. Any backend URL left empty disables that
// layer without disabling the other.
func New(cfg Config, logger *zap.Logger) *DefaultProvider {
	logger = logger.With(zap.String("component", "knowledge"))

	topK := cfg.TopK
	if topK == 0 {
		topK = 5
	}
	depth := cfg.GraphDepth
	if depth == 0 {
		depth = 2
	}

	p := &DefaultProvider{topK: topK, depth: depth, logger: logger}
	if cfg.VectorStoreURL != "" {
		p.vector = newVectorStoreClient(cfg.VectorStoreURL, cfg.EmbeddingURL, logger)
	}
	if cfg.CodeGraphURL != "" {
		p.graph = newCodeGraphClient(cfg.CodeGraphURL, logger)
	}
	return p
}

// Query performs semantic search, resolves the top results' ARNs, then
// traverses the code graph from those ARNs. Any stage's failure yields a
// shorter (possibly empty) result rather than an error.
func (p *DefaultProvider) Query(ctx context.Context, query string) (string, error) {
	if p.vector == nil {
		return "", nil
	}

	hits, err := p.vector.Search(ctx, query, p.topK)
	if err != nil {
		p.logger.Warn("vector store search failed", zap.Error(err))
		return "", nil
	}
	if len(hits) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("### Related code (semantic search)\n\n")
	arns := make([]string, 0, len(hits))
	for _, h := range hits {
		fmt.Fprintf(&b, "- `%s` (score %.2f): %s\n", h.ARN, h.Score, truncate(h.Snippet, 300))
		arns = append(arns, h.ARN)
	}

	if p.graph != nil {
		related, err := p.graph.Traverse(ctx, arns, p.depth)
		if err != nil {
			p.logger.Warn("code graph traversal failed", zap.Error(err))
		} else if len(related) > 0 {
			b.WriteString("\n### Structurally related symbols\n\n")
			for _, r := range related {
				fmt.Fprintf(&b, "- `%s` --%s--> `%s`\n", r.FromARN, r.Relationship, r.Symbol.ARN)
			}
		}
	}

	return b.String(), nil
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
