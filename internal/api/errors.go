package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/lifecycle"
)

// errorBody is the JSON shape of every failed response. Result carries
// the partial outcome of an ingest or delete that failed part way.
type errorBody struct {
	Error  any `json:"error"`
	Result any `json:"result,omitempty"`
}

// StatusFor maps an error onto an HTTP status.
func StatusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, lifecycle.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch docerrors.GetCode(err) {
	case docerrors.ErrCodeDocumentNotFound:
		return http.StatusNotFound
	case docerrors.ErrCodeIndexLocked:
		return http.StatusConflict
	case docerrors.ErrCodeIndexUnavailable, docerrors.ErrCodeEmbeddingFailed:
		return http.StatusServiceUnavailable
	}
	switch docerrors.GetCategory(err) {
	case docerrors.CategoryValidation:
		return http.StatusBadRequest
	case docerrors.CategoryNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, err error, result any) {
	if status == 0 {
		status = StatusFor(err)
	}
	c.JSON(status, errorBody{Error: docerrors.ToJSON(err), Result: result})
}

func errBodyTooLarge(max int64) error {
	return docerrors.ValidationError(fmt.Sprintf("request body exceeds %d bytes", max), nil)
}

// bindError turns a JSON decoding failure into a validation error, keeping
// the size limit distinguishable.
func bindError(err error) (int, error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge, errBodyTooLarge(maxErr.Limit)
	}
	return http.StatusBadRequest, docerrors.ValidationError("malformed request body", err)
}
