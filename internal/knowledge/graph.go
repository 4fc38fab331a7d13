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

const codeGraphTimeout = 10 * time.Second

// CodeSymbol identifies a code-graph node.
type CodeSymbol struct {
	ARN  string `json:"arn"`
	Name string `json:"name"`
}

// GraphEdge is one hop of a traversal result.
type GraphEdge struct {
	FromARN      string     `json:"from_arn"`
	Relationship string     `json:"relationship"`
	Symbol       CodeSymbol `json:"symbol"`
}

const traverseQuery = `
query Traverse($arns: [String!]!, $depth: Int!) {
  traverseFromArns(arns: $arns, depth: $depth) {
    fromArn
    relationship
    symbol { arn name }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type traverseResponse struct {
	Data struct {
		TraverseFromArns []GraphEdge `json:"traverseFromArns"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// codeGraphClient traverses SCIP-derived structural relationships via a
// GraphQL endpoint, using raw JSON-over-HTTP GraphQL requests rather than
// a generated GraphQL client.
type codeGraphClient struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func newCodeGraphClient(url string, logger *zap.Logger) *codeGraphClient {
	return &codeGraphClient{url: url, client: &http.Client{Timeout: codeGraphTimeout}, logger: logger}
}

// Traverse follows relationships outward from arns up to depth hops.
func (c *codeGraphClient) Traverse(ctx context.Context, arns []string, depth int) ([]GraphEdge, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:     traverseQuery,
		Variables: map[string]any{"arns": arns, "depth": depth},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal code graph request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build code graph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("code graph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("code graph returned status %d", resp.StatusCode)
	}

	var out traverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode code graph response: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("code graph errors: %s", out.Errors[0].Message)
	}
	return out.Data.TraverseFromArns, nil
}
