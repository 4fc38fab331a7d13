package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNoOpProviderAlwaysEmpty(t *testing.T) {
	p := NoOpProvider{}
	text, err := p.Query(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestDefaultProviderQueryCombinesVectorAndGraph(t *testing.T) {
	vectorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{Results: []SemanticHit{
			{ARN: "arn:archon:pkg:auth.go:Handler", Score: 0.92, Snippet: "func Handler() {}"},
		}})
	}))
	defer vectorSrv.Close()

	graphSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp traverseResponse
		resp.Data.TraverseFromArns = []GraphEdge{
			{FromARN: "arn:archon:pkg:auth.go:Handler", Relationship: "references", Symbol: CodeSymbol{ARN: "arn:archon:pkg:token.go:Validate"}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer graphSrv.Close()

	p := New(Config{VectorStoreURL: vectorSrv.URL, CodeGraphURL: graphSrv.URL}, zap.NewNop())
	text, err := p.Query(context.Background(), "oauth2 handler")
	require.NoError(t, err)

	assert.Contains(t, text, "Related code")
	assert.Contains(t, text, "arn:archon:pkg:auth.go:Handler")
	assert.Contains(t, text, "Structurally related symbols")
	assert.Contains(t, text, "token.go:Validate")
}

func TestDefaultProviderDegradesOnVectorStoreFailure(t *testing.T) {
	vectorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer vectorSrv.Close()

	p := New(Config{VectorStoreURL: vectorSrv.URL}, zap.NewNop())
	text, err := p.Query(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestDefaultProviderWithNoBackendsConfigured(t *testing.T) {
	p := New(Config{}, zap.NewNop())
	text, err := p.Query(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, text)
}
