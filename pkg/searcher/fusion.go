package searcher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docrag/internal/embed"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/telemetry"
)

// Retriever resolves a Strategy and runs the matching branch, or both.
//
// Thread-safe for concurrent use.
type Retriever struct {
	lexical       Searcher
	vector        Searcher
	normalization Normalization
	timeout       time.Duration
	metrics       *telemetry.Metrics
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLexicalSearcher sets the lexical branch.
func WithLexicalSearcher(s Searcher) Option {
	return func(r *Retriever) { r.lexical = s }
}

// WithVectorSearcher sets the vector branch.
func WithVectorSearcher(s Searcher) Option {
	return func(r *Retriever) { r.vector = s }
}

// WithNormalization sets the per-branch score policy for hybrid fusion.
func WithNormalization(n Normalization) Option {
	return func(r *Retriever) { r.normalization = n }
}

// WithTimeout bounds each branch call. Zero means no extra bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Retriever) { r.timeout = d }
}

// WithMetrics records searches on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Retriever) { r.metrics = m }
}

// NewRetriever creates a Retriever. At least one branch is required; a
// strategy needing a missing branch fails with IndexUnavailable.
func NewRetriever(opts ...Option) (*Retriever, error) {
	r := &Retriever{normalization: NormalizeNone}
	for _, opt := range opts {
		opt(r)
	}
	if r.lexical == nil && r.vector == nil {
		return nil, ErrNoSearchers
	}
	return r, nil
}

// Search runs query under opts.Strategy.
func (r *Retriever) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()
	resp, err := r.search(ctx, query, opts)

	n := 0
	if resp != nil {
		n = len(resp.Results)
	}
	r.metrics.RecordSearch(ctx, query, opts.Strategy.String(), n, time.Since(start), err)
	if err != nil {
		slog.Debug("search_failed",
			slog.String("strategy", opts.Strategy.String()),
			slog.String("error", err.Error()))
		return nil, err
	}
	slog.Debug("search_complete",
		slog.String("strategy", opts.Strategy.String()),
		slog.Int("results", n),
		slog.Int("warnings", len(resp.Warnings)),
		slog.Duration("duration", time.Since(start)))
	return resp, nil
}

func (r *Retriever) search(ctx context.Context, query string, opts Options) (*Response, error) {
	topK := opts.TopK
	switch {
	case topK < 0:
		return nil, docerrors.New(docerrors.ErrCodeInvalidTopK,
			fmt.Sprintf("top_k must be positive, got %d", topK), nil)
	case topK == 0:
		topK = DefaultTopK
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &Response{Strategy: opts.Strategy, Results: []Result{}}
	switch opts.Strategy {
	case Lexical:
		results, err := r.branch(ctx, r.lexical, SourceLexical, query, topK)
		if err != nil {
			return nil, err
		}
		resp.Results = results

	case Vector:
		if embed.IsBlank(query) {
			return nil, errEmptyQuery()
		}
		results, err := r.branch(ctx, r.vector, SourceVector, query, topK)
		if err != nil {
			return nil, err
		}
		resp.Results = results

	case Hybrid:
		if embed.IsBlank(query) {
			return nil, errEmptyQuery()
		}
		return r.hybrid(ctx, query, topK)

	default:
		return nil, docerrors.New(docerrors.ErrCodeInvalidStrategy,
			fmt.Sprintf("unknown search strategy %d", opts.Strategy), nil)
	}
	return resp, nil
}

// branch calls s under the per-branch timeout.
func (r *Retriever) branch(ctx context.Context, s Searcher, src Source, query string, topK int) ([]Result, error) {
	if s == nil {
		return nil, docerrors.IndexUnavailableError(string(src), errors.New("index is not configured"))
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	results, err := s.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}

// hybrid runs both branches concurrently and fuses them.
func (r *Retriever) hybrid(ctx context.Context, query string, topK int) (*Response, error) {
	var (
		lexResults, vecResults []Result
		lexErr, vecErr         error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexResults, lexErr = r.branch(gctx, r.lexical, SourceLexical, query, topK)
		return nil
	})
	g.Go(func() error {
		vecResults, vecErr = r.branch(gctx, r.vector, SourceVector, query, topK)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lexErr != nil && vecErr != nil {
		return nil, docerrors.New(docerrors.ErrCodeSearchFailed, "all search branches failed",
			errors.Join(BranchError{SourceLexical, lexErr}, BranchError{SourceVector, vecErr}))
	}

	resp := &Response{Strategy: Hybrid}
	if lexErr != nil {
		resp.Warnings = append(resp.Warnings, r.dropBranch(ctx, SourceLexical, lexErr))
	}
	if vecErr != nil {
		resp.Warnings = append(resp.Warnings, r.dropBranch(ctx, SourceVector, vecErr))
	}

	if r.normalization == NormalizeMinMax {
		lexResults = normalizeMinMax(lexResults)
		vecResults = normalizeMinMax(vecResults)
	}
	resp.Results = Fuse(lexResults, vecResults, topK)
	return resp, nil
}

func (r *Retriever) dropBranch(ctx context.Context, src Source, err error) BranchError {
	r.metrics.RecordBranchFailure(ctx, string(src))
	slog.Warn("search_branch_failed",
		slog.String("branch", string(src)),
		slog.String("code", docerrors.GetCode(err)),
		slog.String("error", err.Error()))
	return BranchError{Branch: src, Err: err}
}

// Fuse concatenates the branches, sorts by score descending, drops
// repeated (doc_name, chunk_id) keys keeping the first, and truncates to
// topK.
func Fuse(lexical, vector []Result, topK int) []Result {
	all := make([]Result, 0, len(lexical)+len(vector))
	all = append(all, lexical...)
	all = append(all, vector...)

	slices.SortStableFunc(all, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Source.rank(), b.Source.rank()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DocName, b.DocName); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})

	seen := make(map[store.ChunkKey]struct{}, len(all))
	out := make([]Result, 0, min(topK, len(all)))
	for _, res := range all {
		if len(out) == topK {
			break
		}
		if _, dup := seen[res.Key()]; dup {
			continue
		}
		seen[res.Key()] = struct{}{}
		out = append(out, res)
	}
	return out
}

// normalizeMinMax maps scores onto [0, 1] within one branch. A branch whose
// scores are all equal maps to 1.
func normalizeMinMax(results []Result) []Result {
	if len(results) == 0 {
		return results
	}
	lo, hi := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		lo = min(lo, r.Score)
		hi = max(hi, r.Score)
	}
	out := slices.Clone(results)
	for i := range out {
		if hi == lo {
			out[i].Score = 1
			continue
		}
		out[i].Score = (out[i].Score - lo) / (hi - lo)
	}
	return out
}
