package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	// DefaultGeminiModel is Google's text embedding model.
	DefaultGeminiModel = "text-embedding-004"

	// GeminiDimensions is the output size of DefaultGeminiModel.
	GeminiDimensions = 768
)

// GeminiConfig configures the Gemini embedder.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
}

// GeminiEmbedder embeds through the Google Generative AI SDK.
type GeminiEmbedder struct {
	mu     sync.RWMutex
	client *genai.Client
	model  *genai.EmbeddingModel
	config GeminiConfig
	closed bool
}

// NewGeminiEmbedder creates the SDK client. It fails without an API key.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, failure(ReasonUnavailable, "missing API key for gemini embeddings", nil).
			WithSuggestion("set DOCRAG_EMBED_API_KEY or GEMINI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = GeminiDimensions
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, classify("gemini", err)
	}
	model := client.EmbeddingModel(cfg.Model)
	model.TaskType = genai.TaskTypeRetrievalDocument

	return &GeminiEmbedder{client: client, model: model, config: cfg}, nil
}

// Embed embeds a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if IsBlank(text) {
		return []float32{}, nil
	}
	if err := e.check(); err != nil {
		return nil, err
	}

	resp, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, geminiError(err)
	}
	if resp == nil || resp.Embedding == nil {
		return nil, failure(ReasonMalformed, "gemini returned no embedding", nil)
	}
	vec := resp.Embedding.Values
	if err := checkVector("gemini", vec, e.config.Dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch uses BatchEmbedContents.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.config.BatchSize, e.embedBatch)
}

func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.check(); err != nil {
		return nil, err
	}

	b := e.model.NewBatch()
	for _, t := range texts {
		b.AddContent(genai.Text(t))
	}
	resp, err := e.model.BatchEmbedContents(ctx, b)
	if err != nil {
		return nil, geminiError(err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, failure(ReasonMalformed, "gemini returned a short batch", nil)
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, failure(ReasonMalformed, fmt.Sprintf("gemini returned no embedding for input %d", i), nil)
		}
		if err := checkVector("gemini", emb.Values, e.config.Dimensions); err != nil {
			return nil, err
		}
		out[i] = emb.Values
	}
	return out, nil
}

func (e *GeminiEmbedder) check() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return failure(ReasonUnavailable, "embedder is closed", nil)
	}
	return nil
}

// geminiError classifies SDK errors; quota errors surface as 429 or
// RESOURCE_EXHAUSTED in the message.
func geminiError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return failure(ReasonQuota, "gemini quota exceeded", err).WithDetail("provider", "gemini")
	}
	return classify("gemini", err)
}

// Dimensions returns the configured dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the configured model.
func (e *GeminiEmbedder) ModelName() string {
	return e.config.Model
}

// Available embeds a probe string.
func (e *GeminiEmbedder) Available(ctx context.Context) bool {
	_, err := e.Embed(ctx, "ping")
	return err == nil
}

// Close closes the SDK client.
func (e *GeminiEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.client.Close()
}

var _ Embedder = (*GeminiEmbedder)(nil)
