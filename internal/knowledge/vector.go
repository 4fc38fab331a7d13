package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const vectorStoreTimeout = 10 * time.Second

// SemanticHit is a single vector-store search result.
type SemanticHit struct {
	ARN     string  `json:"arn"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResponse struct {
	Results []SemanticHit `json:"results"`
}

// vectorStoreClient performs semantic search over a vector-store HTTP API
// (e.g. a Qdrant-fronting service). It uses a plain JSON-over-HTTP POST
// with hand-rolled request/response structs rather than a generated SDK.
type vectorStoreClient struct {
	searchURL string
	client    *http.Client
	logger    *zap.Logger
}

func newVectorStoreClient(baseURL, embeddingURL string, logger *zap.Logger) *vectorStoreClient {
	return &vectorStoreClient{
		searchURL: baseURL,
		client:    &http.Client{Timeout: vectorStoreTimeout},
		logger:    logger,
	}
}

// Search issues a semantic search request and returns up to topK hits.
func (c *vectorStoreClient) Search(ctx context.Context, query string, topK int) ([]SemanticHit, error) {
	body, err := json.Marshal(searchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshal vector store request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build vector store request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector store request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("vector store returned status %d", resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode vector store response: %w", err)
	}
	return out.Results, nil
}
