package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in   string
		want ProviderType
	}{
		{"", ProviderOpenAI},
		{"OpenAI", ProviderOpenAI},
		{"dashscope", ProviderOpenAI},
		{"ollama", ProviderOllama},
		{"gemini", ProviderGemini},
		{" static ", ProviderStatic},
	}
	for _, tt := range tests {
		got, err := ParseProvider(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseProvider("mlx")
	require.Error(t, err)
	assert.Equal(t, docerrors.ErrCodeConfigInvalid, docerrors.GetCode(err))
	assert.False(t, IsValidProvider("mlx"))
	assert.True(t, IsValidProvider("static"))
}

func TestNewEmbedder_StaticIsCachedButNotGuarded(t *testing.T) {
	// Given: a static config
	cfg := DefaultConfig()
	cfg.Provider = ProviderStatic
	cfg.Dimensions = 32

	// When: I build the embedder
	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Then: it is a cache around the static embedder
	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	_, isStatic := cached.Inner().(*StaticEmbedder)
	assert.True(t, isStatic)
	assert.Equal(t, 32, e.Dimensions())
}

func TestNewEmbedder_RemoteIsGuarded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = ProviderOllama
	cfg.CacheSize = -1

	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, ok := e.(*GuardedEmbedder)
	assert.True(t, ok)

	info := GetInfo(context.Background(), e)
	assert.Equal(t, ProviderOllama, info.Provider)
	assert.Equal(t, DefaultOllamaModel, info.Model)
}

func TestNewEmbedder_GeminiWithoutKeyFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = ProviderGemini

	_, err := NewEmbedder(context.Background(), cfg)

	require.Error(t, err)
	assert.True(t, docerrors.IsEmbeddingFailure(err))
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	_, err := NewEmbedder(context.Background(), Config{Provider: "bogus"})
	require.Error(t, err)
}
