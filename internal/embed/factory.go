package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderOpenAI talks to any OpenAI-compatible /embeddings endpoint
	// (DashScope by default).
	ProviderOpenAI ProviderType = "openai"

	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderGemini uses the Google Generative AI SDK.
	ProviderGemini ProviderType = "gemini"

	// ProviderStatic hashes locally; no network.
	ProviderStatic ProviderType = "static"
)

// Config selects and tunes an embedder.
type Config struct {
	Provider   ProviderType
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	BatchSize  int

	// Timeout bounds each provider call.
	Timeout time.Duration

	// CacheSize is the LRU size; negative disables caching.
	CacheSize int

	RatePerSec      float64
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
}

// DefaultConfig returns the openai provider with guard and cache defaults.
func DefaultConfig() Config {
	g := DefaultGuardConfig()
	return Config{
		Provider:        ProviderOpenAI,
		Dimensions:      DefaultDimensions,
		Timeout:         g.Timeout,
		CacheSize:       DefaultEmbeddingCacheSize,
		RatePerSec:      g.RatePerSec,
		Burst:           g.Burst,
		BreakerFailures: g.BreakerFailures,
		BreakerCooldown: g.BreakerCooldown,
	}
}

// NewEmbedder builds the provider named by cfg.Provider. Remote providers
// are wrapped in a GuardedEmbedder; every provider is then wrapped in a
// CachedEmbedder unless CacheSize is negative.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	var (
		embedder Embedder
		remote   = true
	)

	switch cfg.Provider {
	case ProviderOpenAI, "":
		embedder = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	case ProviderOllama:
		embedder = NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	case ProviderGemini:
		g, err := NewGeminiEmbedder(ctx, GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		embedder = g
	case ProviderStatic:
		embedder = NewStaticEmbedder(cfg.Dimensions)
		remote = false
	default:
		return nil, docerrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", cfg.Provider), nil).
			WithSuggestion("use one of: " + strings.Join(ValidProviders(), ", "))
	}

	if remote {
		embedder = NewGuardedEmbedder(embedder, GuardConfig{
			Timeout:         cfg.Timeout,
			RatePerSec:      cfg.RatePerSec,
			Burst:           cfg.Burst,
			BreakerFailures: cfg.BreakerFailures,
			BreakerCooldown: cfg.BreakerCooldown,
		})
	}
	if cfg.CacheSize >= 0 {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(cfg.Provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))
	return embedder, nil
}

// ParseProvider converts a string to a ProviderType. Empty selects openai.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "openai", "dashscope":
		return ProviderOpenAI, nil
	case "ollama":
		return ProviderOllama, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "static":
		return ProviderStatic, nil
	default:
		return "", docerrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", s), nil).
			WithSuggestion("use one of: " + strings.Join(ValidProviders(), ", "))
	}
}

// String returns the provider name.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all provider names.
func ValidProviders() []string {
	return []string{
		string(ProviderOpenAI),
		string(ProviderOllama),
		string(ProviderGemini),
		string(ProviderStatic),
	}
}

// IsValidProvider reports whether ParseProvider accepts s.
func IsValidProvider(s string) bool {
	_, err := ParseProvider(s)
	return err == nil
}

// EmbedderInfo describes an embedder for status output.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo unwraps decorators to report the underlying provider.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	for {
		switch e := inner.(type) {
		case *CachedEmbedder:
			inner = e.inner
			continue
		case *GuardedEmbedder:
			inner = e.inner
			continue
		}
		break
	}

	switch inner.(type) {
	case *OpenAIEmbedder:
		info.Provider = ProviderOpenAI
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	case *GeminiEmbedder:
		info.Provider = ProviderGemini
	default:
		info.Provider = ProviderStatic
	}
	return info
}
