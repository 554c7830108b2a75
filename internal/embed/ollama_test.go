package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbedder_EmbedNormalizesVectors(t *testing.T) {
	// Given: an Ollama server returning an unnormalized vector
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge-m3", req.Model)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float64{{3, 4}}})
	}))
	defer srv.Close()
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL + "/", Dimensions: 2})
	defer func() { _ = e.Close() }()

	// When: I embed
	vec, err := e.Embed(context.Background(), "hi")

	// Then: the vector is unit length
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestOllamaEmbedder_Available_ChecksModelTag(t *testing.T) {
	tests := []struct {
		name  string
		tags  string
		model string
		want  bool
	}{
		{"exact", `{"models":[{"name":"bge-m3"}]}`, "bge-m3", true},
		{"tagged", `{"models":[{"name":"bge-m3:latest"}]}`, "bge-m3", true},
		{"missing", `{"models":[{"name":"llama3"}]}`, "bge-m3", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.tags))
			}))
			defer srv.Close()
			e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: tt.model})

			assert.Equal(t, tt.want, e.Available(context.Background()))
		})
	}
}

func TestOllamaEmbedder_Closed(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{})
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "x")

	require.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
