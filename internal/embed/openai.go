package embed

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
)

const (
	// DefaultOpenAIBaseURL is DashScope's OpenAI-compatible endpoint.
	DefaultOpenAIBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

	// DefaultOpenAIModel is the default model for the openai provider.
	DefaultOpenAIModel = "text-embedding-v4"
)

// OpenAIConfig configures an OpenAI-compatible embeddings client.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
}

// OpenAIEmbedder calls POST {BaseURL}/embeddings.
type OpenAIEmbedder struct {
	mu        sync.RWMutex
	client    *http.Client
	transport *http.Transport
	config    OpenAIConfig
	closed    bool
}

type openAIRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

type openAIEmbedding struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type openAIResponse struct {
	Data  []openAIEmbedding `json:"data"`
	Model string            `json:"model"`
}

// NewOpenAIEmbedder returns a client. It does not contact the endpoint.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	client, transport := newHTTPClient()
	return &OpenAIEmbedder{client: client, transport: transport, config: cfg}
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if IsBlank(text) {
		return []float32{}, nil
	}
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in provider-sized slices.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.config.BatchSize, e.embed)
}

func (e *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, failure(ReasonUnavailable, "embedder is closed", nil)
	}

	req := openAIRequest{
		Model:          e.config.Model,
		Input:          texts,
		Dimensions:     e.config.Dimensions,
		EncodingFormat: "float",
	}
	headers := map[string]string{}
	if e.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + e.config.APIKey
	}

	var resp openAIResponse
	if err := postJSON(ctx, e.client, "openai", e.config.BaseURL+"/embeddings", headers, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, failure(ReasonMalformed,
			fmt.Sprintf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts)), nil)
	}

	// Data is documented as index-ordered but carries explicit indexes.
	data := slices.Clone(resp.Data)
	slices.SortFunc(data, func(a, b openAIEmbedding) int { return a.Index - b.Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		vec := toFloat32(d.Embedding)
		if err := checkVector("openai", vec, e.config.Dimensions); err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the requested output dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the configured model.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available sends a one-word request.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	_, err := e.Embed(ctx, "ping")
	return err == nil
}

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)
