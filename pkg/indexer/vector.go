package indexer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/docrag/internal/embed"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
)

// embedSlot holds the outcome for one chunk.
type embedSlot struct {
	vector []float32
	err    error
}

// embedChunks embeds chunks on the worker pool in batches of batchSize.
// It returns the chunks that received a vector, in input order, and the
// chunks that were skipped. A non-nil error means ctx ended.
func (h *HybridIndexer) embedChunks(ctx context.Context, docName string, chunks []store.Chunk) ([]store.Chunk, []SkippedChunk, error) {
	slots := make([]embedSlot, len(chunks))
	var wg sync.WaitGroup

	for start := 0; start < len(chunks); start += h.batchSize {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, nil, err
		}
		end := min(start+h.batchSize, len(chunks))
		batch := chunks[start:end]
		out := slots[start:end]

		wg.Add(1)
		task := func() {
			defer wg.Done()
			h.embedBatch(ctx, batch, out)
		}
		if err := h.pool.Submit(task); err != nil {
			wg.Done()
			for i := range out {
				out[i].err = err
			}
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	embedded := make([]store.Chunk, 0, len(chunks))
	var skipped []SkippedChunk
	for i, c := range chunks {
		s := slots[i]
		switch {
		case s.err != nil:
			reason := embed.FailureReason(s.err)
			h.metrics.RecordEmbedFailure(ctx, reason)
			slog.Warn("chunk_embedding_failed",
				slog.String("doc", docName),
				slog.Int("chunk_id", c.ChunkID),
				slog.String("reason", reason),
				slog.String("error", s.err.Error()))
			skipped = append(skipped, SkippedChunk{ChunkID: c.ChunkID, Reason: SkipEmbedFailed, Detail: s.err.Error()})
		case len(s.vector) == 0:
			slog.Warn("chunk_embedding_empty",
				slog.String("doc", docName),
				slog.Int("chunk_id", c.ChunkID))
			skipped = append(skipped, SkippedChunk{ChunkID: c.ChunkID, Reason: SkipEmptyEmbedding})
		default:
			c.Vector = s.vector
			embedded = append(embedded, c)
		}
	}
	return embedded, skipped, nil
}

// embedBatch fills out for batch. Only a malformed reply to a multi-item
// batch (a short batch or an unparseable body) is split into per-chunk
// calls, so a single bad chunk does not sink its batch. Timeouts, quota,
// unavailable providers and an open circuit fail the whole batch without
// another call.
func (h *HybridIndexer) embedBatch(ctx context.Context, batch []store.Chunk, out []embedSlot) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vecs, err := h.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vecs) == len(batch) {
		for i := range out {
			out[i].vector = vecs[i]
		}
		return
	}
	if err == nil {
		err = docerrors.EmbeddingError("embedder returned a short batch", nil).
			WithDetail("reason", embed.ReasonMalformed)
	}

	if len(batch) == 1 || ctx.Err() != nil || embed.FailureReason(err) != embed.ReasonMalformed {
		for i := range out {
			out[i].err = err
		}
		return
	}
	for i, t := range texts {
		out[i].vector, out[i].err = h.embedder.Embed(ctx, t)
	}
}
