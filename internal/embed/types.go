// Package embed is the embedding gateway: text in, fixed-length vector out.
//
// Providers call an external model (OpenAI-compatible, Ollama, Gemini) or
// hash locally (static). Every provider shares two rules: blank text maps to
// an empty vector without a call, and any failure is an EmbeddingFailure
// (ERR_502_EMBEDDING_FAILED) so callers can skip rather than abort.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

const (
	// DefaultDimensions is used when a provider has no dimension configured.
	DefaultDimensions = 1024

	// DefaultTimeout bounds a single embedding call.
	DefaultTimeout = 30 * time.Second

	// MaxBatchSize caps how many texts go into one provider request.
	MaxBatchSize = 25
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns the embedding of text, or an empty vector when text is
	// blank.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in order. Blank entries yield empty vectors.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the length of every non-empty vector.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the provider can be reached.
	Available(ctx context.Context) bool

	Close() error
}

// IsBlank reports whether text produces no embedding.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// Failure reasons recorded in the "reason" detail of an EmbeddingFailure.
const (
	ReasonTimeout     = "timeout"
	ReasonQuota       = "quota"
	ReasonMalformed   = "malformed_response"
	ReasonUnavailable = "unavailable"
	ReasonCircuitOpen = "circuit_open"
)

// failure builds an EmbeddingFailure with a reason detail.
func failure(reason, message string, cause error) *docerrors.DocError {
	return docerrors.EmbeddingError(message, cause).WithDetail("reason", reason)
}

// FailureReason returns the reason detail of an EmbeddingFailure, or ""
// for any other error.
func FailureReason(err error) string {
	var de *docerrors.DocError
	if !errors.As(err, &de) || !docerrors.IsEmbeddingFailure(err) {
		return ""
	}
	return de.Details["reason"]
}

// classify maps a transport error onto an EmbeddingFailure.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if docerrors.IsEmbeddingFailure(err) {
		return err
	}
	reason := ReasonUnavailable
	if isTimeout(err) {
		reason = ReasonTimeout
	}
	return failure(reason, fmt.Sprintf("%s embedding request failed", provider), err).
		WithDetail("provider", provider)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// checkVector verifies a provider response has the configured length.
func checkVector(provider string, vec []float32, dims int) error {
	if len(vec) != dims {
		return failure(ReasonMalformed,
			fmt.Sprintf("%s returned a %d-dimensional vector, expected %d", provider, len(vec), dims), nil).
			WithDetail("provider", provider)
	}
	return nil
}

// toFloat32 converts a JSON float64 vector.
func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// normalizeVector returns v scaled to unit length. A zero vector is
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}

// embedEach embeds non-blank texts through fn in slices of at most size,
// leaving blank entries as empty vectors.
func embedEach(ctx context.Context, texts []string, size int, fn func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		idx   []int
		batch []string
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		vecs, err := fn(ctx, batch)
		if err != nil {
			return err
		}
		if len(vecs) != len(batch) {
			return failure(ReasonMalformed,
				fmt.Sprintf("provider returned %d vectors for %d inputs", len(vecs), len(batch)), nil)
		}
		for j, i := range idx {
			out[i] = vecs[j]
		}
		idx, batch = idx[:0], batch[:0]
		return nil
	}

	for i, t := range texts {
		if IsBlank(t) {
			out[i] = []float32{}
			continue
		}
		idx = append(idx, i)
		batch = append(batch, t)
		if len(batch) == size {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}
