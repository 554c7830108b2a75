package errors

import (
	stderrors "errors"
	"fmt"
)

// DocError is the structured error type for docrag.
// It provides rich context for error handling, logging, and user presentation.
type DocError struct {
	// Code is the unique error code (e.g., "ERR_207_PARSE_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried by the caller.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *DocError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DocError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with DocError.
func (e *DocError) Is(target error) bool {
	if t, ok := target.(*DocError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *DocError) WithDetail(key, value string) *DocError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *DocError) WithSuggestion(suggestion string) *DocError {
	e.Suggestion = suggestion
	return e
}

// New creates a new DocError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *DocError {
	return &DocError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DocError from an existing error.
// The error's message becomes the DocError message.
func Wrap(code string, err error) *DocError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DocError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *DocError {
	return New(ErrCodeFileNotFound, message, cause)
}

// NetworkError creates a network-related error.
func NetworkError(message string, cause error) *DocError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a ValidationFailure for malformed input.
func ValidationError(message string, cause error) *DocError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *DocError {
	return New(ErrCodeInternal, message, cause)
}

// EmbeddingError creates an EmbeddingFailure.
func EmbeddingError(message string, cause error) *DocError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// IndexUnavailableError creates an IndexUnavailable failure for the named index.
func IndexUnavailableError(index string, cause error) *DocError {
	return New(ErrCodeIndexUnavailable, fmt.Sprintf("%s index unavailable", index), cause).
		WithDetail("index", index)
}

// PartialBatchError creates a PartialBatchFailure.
func PartialBatchError(index string, failed, total int) *DocError {
	return New(ErrCodePartialBatch,
		fmt.Sprintf("%s index rejected %d of %d records", index, failed, total), nil).
		WithDetail("index", index).
		WithDetail("failed", fmt.Sprintf("%d", failed)).
		WithDetail("total", fmt.Sprintf("%d", total))
}

// DocumentNotFoundError reports a document name no index holds.
func DocumentNotFoundError(docName string) *DocError {
	return New(ErrCodeDocumentNotFound, fmt.Sprintf("document %q is not indexed", docName), nil).
		WithDetail("doc_name", docName).
		WithSuggestion("run 'docrag list' to see indexed documents")
}

// ParseError creates a ParseFailure for a document that could not be read.
func ParseError(path string, cause error) *DocError {
	return New(ErrCodeParseFailed, fmt.Sprintf("failed to extract text from %s", path), cause).
		WithDetail("path", path)
}

// as finds the first DocError in err's chain.
func as(err error) (*DocError, bool) {
	if err == nil {
		return nil, false
	}
	var de *DocError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
// Returns true if the chain holds a DocError with Retryable flag set.
func IsRetryable(err error) bool {
	if de, ok := as(err); ok {
		return de.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if de, ok := as(err); ok {
		return de.Severity == SeverityFatal
	}
	return false
}

// IsValidation reports whether err is a ValidationFailure.
func IsValidation(err error) bool {
	return GetCategory(err) == CategoryValidation
}

// IsEmbeddingFailure reports whether err is an EmbeddingFailure.
func IsEmbeddingFailure(err error) bool {
	return GetCode(err) == ErrCodeEmbeddingFailed
}

// IsIndexUnavailable reports whether err is an IndexUnavailable failure.
func IsIndexUnavailable(err error) bool {
	return GetCode(err) == ErrCodeIndexUnavailable
}

// IsPartialBatch reports whether err is a PartialBatchFailure.
func IsPartialBatch(err error) bool {
	return GetCode(err) == ErrCodePartialBatch
}

// IsParseFailure reports whether err is a ParseFailure.
func IsParseFailure(err error) bool {
	return GetCode(err) == ErrCodeParseFailed
}

// GetCode extracts the error code from a DocError.
// Returns empty string if the chain holds no DocError.
func GetCode(err error) string {
	if de, ok := as(err); ok {
		return de.Code
	}
	return ""
}

// GetCategory extracts the category from a DocError.
// Returns empty string if the chain holds no DocError.
func GetCategory(err error) Category {
	if de, ok := as(err); ok {
		return de.Category
	}
	return ""
}
