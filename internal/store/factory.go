package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// LexicalBackend selects the LexicalIndex implementation.
type LexicalBackend string

const (
	// LexicalBackendBleve uses Bleve v2 (default).
	LexicalBackendBleve LexicalBackend = "bleve"

	// LexicalBackendSQLite uses SQLite FTS5 in WAL mode, which allows
	// readers in other processes while one process writes.
	LexicalBackendSQLite LexicalBackend = "sqlite"
)

// File names under the data directory.
const (
	lexicalBase    = "lexical"
	VectorFileName = "vectors.hnsw"
)

// NewLexicalIndex builds the LexicalIndex for backend. basePath has no
// extension; ".bleve" or ".db" is appended. An empty basePath keeps the
// index in memory.
func NewLexicalIndex(basePath string, backend LexicalBackend) (LexicalIndex, error) {
	switch backend {
	case LexicalBackendBleve, "":
		return NewBleveLexicalIndex(withExt(basePath, ".bleve")), nil
	case LexicalBackendSQLite:
		return NewSQLiteLexicalIndex(withExt(basePath, ".db")), nil
	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: bleve, sqlite)", backend)
	}
}

// DetectLexicalBackend reports which backend already has an index at
// basePath, or "" when neither does.
func DetectLexicalBackend(basePath string) LexicalBackend {
	if dirExists(basePath + ".bleve") {
		return LexicalBackendBleve
	}
	if fileExists(basePath + ".db") {
		return LexicalBackendSQLite
	}
	return ""
}

// LexicalBasePath returns the lexical index base path inside dataDir.
func LexicalBasePath(dataDir string) string {
	return filepath.Join(dataDir, lexicalBase)
}

// VectorPath returns the vector index file inside dataDir.
func VectorPath(dataDir string) string {
	return filepath.Join(dataDir, VectorFileName)
}

func withExt(base, ext string) string {
	if base == "" {
		return ""
	}
	return base + ext
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
