// Package reader extracts plain text from documents on disk.
//
// A Registry maps lowercase file extensions to Readers. The default
// registry knows plain text, Markdown, PDF, JSON reports, HTML and XLSX
// workbooks. Every extraction failure is reported as a ParseFailure so
// callers can skip the document and keep going.
package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// MaxFileSize bounds the size of a document read into memory.
const MaxFileSize int64 = 200 << 20

// Reader extracts the text of one document.
type Reader interface {
	Read(ctx context.Context, path string) (string, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(ctx context.Context, path string) (string, error)

// Read calls f.
func (f ReaderFunc) Read(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Registry dispatches reads by file extension.
type Registry struct {
	mu      sync.RWMutex
	readers map[string]Reader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{readers: make(map[string]Reader)}
}

// Default returns a registry with every built-in reader registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(ReaderFunc(readText), ".txt", ".md", ".markdown")
	r.Register(ReaderFunc(readPDF), ".pdf")
	r.Register(ReaderFunc(readJSON), ".json")
	r.Register(ReaderFunc(readHTML), ".html", ".htm")
	r.Register(ReaderFunc(readXLSX), ".xlsx")
	return r
}

// Register binds rd to each extension, replacing any earlier binding.
func (r *Registry) Register(rd Reader, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		r.readers[normalizeExt(ext)] = rd
	}
}

// Supported reports whether path has a registered extension.
func (r *Registry) Supported(path string) bool {
	_, ok := r.lookup(path)
	return ok
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.readers))
	for ext := range r.readers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Read extracts the text of the file at path.
func (r *Registry) Read(ctx context.Context, path string) (string, error) {
	rd, ok := r.lookup(path)
	if !ok {
		return "", docerrors.New(docerrors.ErrCodeUnsupportedType,
			fmt.Sprintf("no reader for %s", filepath.Base(path)), nil).
			WithDetail("path", path).
			WithSuggestion(fmt.Sprintf("Supported extensions: %s", strings.Join(r.Extensions(), ", ")))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", docerrors.IOError(fmt.Sprintf("cannot stat %s", path), err).WithDetail("path", path)
	}
	if info.IsDir() {
		return "", docerrors.ValidationError(fmt.Sprintf("%s is a directory", path), nil)
	}
	if info.Size() > MaxFileSize {
		return "", docerrors.New(docerrors.ErrCodeFileTooLarge,
			fmt.Sprintf("%s exceeds %d bytes", path, MaxFileSize), nil).WithDetail("path", path)
	}

	text, err := rd.Read(ctx, path)
	if err != nil {
		if docerrors.GetCode(err) != "" {
			return "", err
		}
		return "", docerrors.ParseError(path, err)
	}
	return text, nil
}

func (r *Registry) lookup(path string) (Reader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rd, ok := r.readers[normalizeExt(filepath.Ext(path))]
	return rd, ok
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
