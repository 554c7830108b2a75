package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
)

// IndexOutcome is the result of deleting a document from one index.
type IndexOutcome struct {
	// Removed is the number of chunks deleted.
	Removed int `json:"removed"`
	// Skipped is true when the index is not configured.
	Skipped bool  `json:"skipped,omitempty"`
	Err     error `json:"-"`
}

// Succeeded reports whether the index was configured and the delete worked.
func (o IndexOutcome) Succeeded() bool {
	return !o.Skipped && o.Err == nil
}

// DeleteResult records what happened to each index on a document delete.
type DeleteResult struct {
	DocName string       `json:"doc_name"`
	Lexical IndexOutcome `json:"lexical"`
	Vector  IndexOutcome `json:"vector"`
}

// Complete is true when every configured index deleted the document.
// Deleting a document that does not exist is complete with zero removals.
func (r *DeleteResult) Complete() bool {
	return r.Lexical.Err == nil && r.Vector.Err == nil
}

// Partial is true when exactly one index deleted the document and the
// other failed.
func (r *DeleteResult) Partial() bool {
	return (r.Lexical.Succeeded() && r.Vector.Err != nil) ||
		(r.Vector.Succeeded() && r.Lexical.Err != nil)
}

// Removed is the total number of chunks deleted across indexes.
func (r *DeleteResult) Removed() int {
	return r.Lexical.Removed + r.Vector.Removed
}

// Err is nil when the delete is complete. Otherwise it is an
// ERR_505_INDEX_FAILED joining the per-index causes.
func (r *DeleteResult) Err() error {
	if r.Complete() {
		return nil
	}
	var causes []error
	if r.Lexical.Err != nil {
		causes = append(causes, fmt.Errorf("%s: %w", store.IndexLexical, r.Lexical.Err))
	}
	if r.Vector.Err != nil {
		causes = append(causes, fmt.Errorf("%s: %w", store.IndexVector, r.Vector.Err))
	}
	msg := fmt.Sprintf("failed to delete %s", r.DocName)
	if r.Partial() {
		msg = fmt.Sprintf("partially deleted %s; indexes are inconsistent", r.DocName)
	}
	return docerrors.New(docerrors.ErrCodeIndexFailed, msg, errors.Join(causes...)).
		WithDetail("doc", r.DocName).
		WithDetail("partial", fmt.Sprint(r.Partial())).
		WithSuggestion("retry the delete, or run 'docrag check --repair'")
}

// deleteLocked fans the delete out to both indexes concurrently. Neither
// branch cancels the other. The caller holds the write lock.
func (m *Manager) deleteLocked(ctx context.Context, docName string) *DeleteResult {
	res := &DeleteResult{DocName: docName}
	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		res.Lexical.Removed, res.Lexical.Err = m.lexical.DeleteByDocument(opCtx, docName)
		return nil
	})
	if m.vector != nil {
		g.Go(func() error {
			res.Vector.Removed, res.Vector.Err = m.vector.DeleteByDocument(opCtx, docName)
			return nil
		})
	} else {
		res.Vector.Skipped = true
	}
	_ = g.Wait()

	attrs := []any{
		slog.String("doc", docName),
		slog.Int("lexical_removed", res.Lexical.Removed),
		slog.Int("vector_removed", res.Vector.Removed),
	}
	switch {
	case res.Complete():
		slog.Info("delete_complete", attrs...)
	case res.Partial():
		slog.Error("delete_partial", append(attrs, slog.String("error", res.Err().Error()))...)
	default:
		slog.Error("delete_failed", append(attrs, slog.String("error", res.Err().Error()))...)
	}
	return res
}
