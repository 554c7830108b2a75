package watcher

import (
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/docrag/internal/ignore"
)

// Filter decides which paths are worth reporting.
type Filter struct {
	ignore *ignore.Matcher
	accept func(string) bool
}

// NewFilter builds a Filter from gitignore-style patterns and an optional
// accept predicate.
func NewFilter(patterns []string, accept func(string) bool) *Filter {
	return &Filter{ignore: ignore.New(patterns...), accept: accept}
}

// LoadIgnoreFile adds the patterns of root's .docragignore, if any.
func (f *Filter) LoadIgnoreFile(root string) error {
	return f.ignore.LoadFile(root)
}

// SkipDir reports whether the directory at rel is not descended into.
// The root (".") is never skipped.
func (f *Filter) SkipDir(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	return hidden(rel) || f.ignore.Match(rel, true)
}

// SkipFile reports whether a file event for rel is dropped.
func (f *Filter) SkipFile(rel string) bool {
	if rel == "." || rel == "" {
		return true
	}
	if hidden(rel) || scratch(filepath.Base(rel)) || f.ignore.Match(rel, false) {
		return true
	}
	return f.accept != nil && !f.accept(rel)
}

// hidden reports whether any element of rel starts with a dot. This also
// keeps .git and the .docrag data directory out of the watch.
func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// scratch matches editor backup and lock files.
func scratch(base string) bool {
	return strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".tmp") ||
		strings.HasPrefix(base, "~$") ||
		(strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"))
}
