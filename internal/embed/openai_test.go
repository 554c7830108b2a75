package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *OpenAIEmbedder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	e := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "m", Dimensions: 3})
	t.Cleanup(func() { _ = e.Close() })
	return srv, e
}

// ============================================================================
// Request Shape
// ============================================================================

func TestOpenAIEmbedder_SendsModelInputAndDimensions(t *testing.T) {
	// Given: a server that records the request
	var got openAIRequest
	var auth string
	_, e := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(openAIResponse{Data: []openAIEmbedding{
			{Index: 0, Embedding: []float64{0.1, 0.2, 0.3}},
		}})
	})

	// When: I embed a text
	vec, err := e.Embed(context.Background(), "hello")

	// Then: the request carries model, input, dimensions and float encoding
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "m", got.Model)
	assert.Equal(t, []string{"hello"}, got.Input)
	assert.Equal(t, 3, got.Dimensions)
	assert.Equal(t, "float", got.EncodingFormat)
	assert.Equal(t, "Bearer sk-test", auth)
}

func TestOpenAIEmbedder_EmbedBatch_ReordersByIndexAndSkipsBlanks(t *testing.T) {
	// Given: a server returning data out of order
	var inputs []string
	_, e := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		inputs = req.Input
		_ = json.NewEncoder(w).Encode(openAIResponse{Data: []openAIEmbedding{
			{Index: 1, Embedding: []float64{0, 1, 0}},
			{Index: 0, Embedding: []float64{1, 0, 0}},
		}})
	})

	// When: I embed a batch with a blank in the middle
	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "  ", "second"})

	// Then: blanks never reach the server and order follows index
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, inputs)
	assert.Equal(t, []float32{1, 0, 0}, vecs[0])
	assert.Empty(t, vecs[1])
	assert.Equal(t, []float32{0, 1, 0}, vecs[2])
}

func TestOpenAIEmbedder_BlankText_NoRequest(t *testing.T) {
	var hits atomic.Int64
	_, e := newOpenAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	})

	vec, err := e.Embed(context.Background(), "")

	require.NoError(t, err)
	assert.Empty(t, vec)
	assert.Equal(t, int64(0), hits.Load())
}

// ============================================================================
// Failure Classification
// ============================================================================

func TestOpenAIEmbedder_FailureReasons(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		reason string
	}{
		{"quota", http.StatusTooManyRequests, `{"error":"rate limited"}`, ReasonQuota},
		{"gateway timeout", http.StatusGatewayTimeout, ``, ReasonTimeout},
		{"server error", http.StatusInternalServerError, `oops`, ReasonUnavailable},
		{"malformed body", http.StatusOK, `not json`, ReasonMalformed},
		{"wrong dimension", http.StatusOK, `{"data":[{"index":0,"embedding":[1,2]}]}`, ReasonMalformed},
		{"short batch", http.StatusOK, `{"data":[]}`, ReasonMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a server answering with the case's status and body
			_, e := newOpenAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			// When: I embed
			_, err := e.Embed(context.Background(), "text")

			// Then: the error is an EmbeddingFailure with the expected reason
			require.Error(t, err)
			assert.True(t, docerrors.IsEmbeddingFailure(err))
			assert.Equal(t, tt.reason, FailureReason(err))
		})
	}
}

func TestOpenAIEmbedder_UnreachableServer(t *testing.T) {
	// Given: a server that is already closed
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	e := NewOpenAIEmbedder(OpenAIConfig{BaseURL: url, Dimensions: 3})

	// When: I embed
	_, err := e.Embed(context.Background(), "text")

	// Then: the error is an unavailable EmbeddingFailure
	require.Error(t, err)
	assert.Equal(t, ReasonUnavailable, FailureReason(err))
	assert.True(t, docerrors.IsRetryable(err))
}

func TestOpenAIEmbedder_Defaults(t *testing.T) {
	e := NewOpenAIEmbedder(OpenAIConfig{})
	assert.Equal(t, DefaultOpenAIModel, e.ModelName())
	assert.Equal(t, DefaultDimensions, e.Dimensions())
	assert.Equal(t, DefaultOpenAIBaseURL, e.config.BaseURL)
}
