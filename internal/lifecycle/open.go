package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/embed"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/pkg/searcher"
)

// Open builds a Manager for cfg: it creates the data directory, opens the
// configured lexical backend and the HNSW vector index, constructs the
// embedder and ensures both schemas. opts are applied after the
// config-derived options.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Manager, error) {
	dataDir := cfg.Paths.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, docerrors.New(docerrors.ErrCodeFilePermission, "cannot create data directory", err).
			WithDetail("path", dataDir)
	}

	backend := store.LexicalBackend(cfg.Lexical.Backend)
	base := store.LexicalBasePath(dataDir)
	if existing := store.DetectLexicalBackend(base); existing != "" && existing != backend {
		slog.Warn("lexical_backend_mismatch",
			slog.String("configured", string(backend)),
			slog.String("existing", string(existing)))
		backend = existing
	}
	lexical, err := store.NewLexicalIndex(base, backend)
	if err != nil {
		return nil, docerrors.ConfigError(err.Error(), err)
	}

	emb, err := NewEmbedder(ctx, cfg)
	if err != nil {
		_ = lexical.Close()
		return nil, err
	}

	dims := cfg.Vector.Dimensions
	if dims == 0 {
		dims = emb.Dimensions()
	}
	vector := store.NewHNSWVectorIndex(store.VectorPath(dataDir), vectorConfig(cfg, dims))

	norm, err := searcher.ParseNormalization(cfg.Search.Normalization)
	if err != nil {
		_ = lexical.Close()
		_ = emb.Close()
		return nil, err
	}

	all := append([]Option{
		WithLexical(lexical),
		WithVector(vector),
		WithEmbedder(emb),
		WithLock(store.NewDataDirLock(dataDir)),
		WithChunkSize(cfg.Chunk.Size),
		WithConcurrency(cfg.Ingest.Concurrency),
		WithBatchSize(cfg.Embed.BatchSize),
		WithNormalization(norm),
		WithBranchTimeout(cfg.BranchTimeout()),
		WithOpTimeout(cfg.OpTimeout()),
	}, opts...)

	m, err := New(all...)
	if err != nil {
		_ = lexical.Close()
		_ = vector.Close()
		_ = emb.Close()
		return nil, err
	}
	if err := m.EnsureIndexes(ctx); err != nil {
		return nil, errors.Join(err, m.Close())
	}

	slog.Debug("manager_opened",
		slog.String("data_dir", dataDir),
		slog.String("lexical_backend", string(backend)),
		slog.Int("dimensions", dims))
	return m, nil
}

// NewEmbedder builds the embedder described by cfg.Embed.
func NewEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	provider, err := embed.ParseProvider(cfg.Embed.Provider)
	if err != nil {
		return nil, err
	}
	return embed.NewEmbedder(ctx, embed.Config{
		Provider:        provider,
		Model:           cfg.Embed.Model,
		BaseURL:         cfg.Embed.BaseURL,
		APIKey:          cfg.Embed.APIKey,
		Dimensions:      cfg.Embed.Dimensions,
		BatchSize:       cfg.Embed.BatchSize,
		Timeout:         cfg.EmbedTimeout(),
		CacheSize:       cfg.Embed.CacheSize,
		RatePerSec:      cfg.Embed.RatePerSec,
		Burst:           cfg.Embed.Burst,
		BreakerFailures: cfg.Embed.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown(),
	})
}

func vectorConfig(cfg *config.Config, dims int) store.VectorConfig {
	vc := store.DefaultVectorConfig(dims)
	if cfg.Vector.M > 0 {
		vc.M = cfg.Vector.M
	}
	if cfg.Vector.EfSearch > 0 {
		vc.EfSearch = cfg.Vector.EfSearch
	}
	if cfg.Vector.ExactLimit != 0 {
		vc.ExactLimit = cfg.Vector.ExactLimit
	}
	return vc
}
