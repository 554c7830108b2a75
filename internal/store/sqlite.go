package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go driver, registers "sqlite"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// SQLiteLexicalIndex implements LexicalIndex on SQLite FTS5.
//
// Content is run through doc_analyzer before it reaches FTS5, and the
// resulting terms are what FTS5 indexes, so CJK bigrams and stop words
// behave exactly as in the Bleve backend. WAL mode lets a second process
// read while the CLI writes.
type SQLiteLexicalIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// NewSQLiteLexicalIndex returns an index stored at path. An empty path keeps
// the database in memory. Nothing is opened until EnsureSchema.
func NewSQLiteLexicalIndex(path string) *SQLiteLexicalIndex {
	return &SQLiteLexicalIndex{path: path}
}

// Path returns the database file, or "" for memory.
func (s *SQLiteLexicalIndex) Path() string {
	return s.path
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS chunks (
	rowid    INTEGER PRIMARY KEY,
	id       TEXT NOT NULL UNIQUE,
	doc_name TEXT NOT NULL,
	chunk_id INTEGER NOT NULL,
	content  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_name, chunk_id);

-- terms holds doc_analyzer output joined by spaces; rowid matches chunks.rowid
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	terms,
	tokenize='unicode61'
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// EnsureSchema opens the database and creates the tables if needed.
func (s *SQLiteLexicalIndex) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed(IndexLexical)
	}
	if s.db != nil {
		return nil
	}

	db, err := openSQLite(ctx, s.path)
	if err != nil {
		return docerrors.IndexUnavailableError(IndexLexical, err).WithDetail("path", s.path)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return docerrors.IndexUnavailableError(IndexLexical, fmt.Errorf("failed to create schema: %w", err))
	}
	s.db = db
	return nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if vErr := validateSQLiteIntegrity(path); vErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", vErr.Error()))
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w (original: %v)", path, rmErr, vErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("lexical_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, documents must be re-ingested"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: a single writer, and an in-memory database lives
	// exactly as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}
	return db, nil
}

// validateSQLiteIntegrity runs integrity_check and confirms the FTS table
// exists. A missing file is fine: it will be created.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='chunks_fts'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("FTS5 table 'chunks_fts' missing")
	}
	return nil
}

func (s *SQLiteLexicalIndex) ready() (*sql.DB, error) {
	if s.closed {
		return nil, errClosed(IndexLexical)
	}
	if s.db == nil {
		return nil, errNotReady(IndexLexical)
	}
	return s.db, nil
}

// UpsertBatch inserts every valid chunk in one transaction. A row that the
// database rejects is reported and the rest of the batch still commits.
func (s *SQLiteLexicalIndex) UpsertBatch(ctx context.Context, chunks []Chunk) (*BatchReport, error) {
	report := &BatchReport{Index: IndexLexical, Total: len(chunks)}
	if len(chunks) == 0 {
		return report, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.ready()
	if err != nil {
		return report, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return report, docerrors.IndexUnavailableError(IndexLexical, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	rowStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, doc_name, chunk_id, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return report, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	defer rowStmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts (rowid, terms) VALUES (?, ?)`)
	if err != nil {
		return report, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	defer ftsStmt.Close()

	for i, c := range chunks {
		if vErr := validateChunk(c); vErr != nil {
			report.fail(i, c, vErr)
			continue
		}
		if iErr := insertChunkAtomic(ctx, tx, rowStmt, ftsStmt, c); iErr != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.fail(i, c, docerrors.Wrap(docerrors.ErrCodeIndexFailed, iErr))
			continue
		}
		report.Written++
	}

	if err := tx.Commit(); err != nil {
		report.Written = 0
		return report, docerrors.IndexUnavailableError(IndexLexical, fmt.Errorf("failed to commit: %w", err))
	}
	return report, report.Err()
}

// insertChunkAtomic writes c under a savepoint, so a failed FTS insert also
// undoes its chunks row and the rest of the batch can still commit.
func insertChunkAtomic(ctx context.Context, tx *sql.Tx, rowStmt, ftsStmt *sql.Stmt, c Chunk) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT chunk_item"); err != nil {
		return err
	}
	if err := insertChunk(ctx, rowStmt, ftsStmt, c); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO chunk_item"); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		_, _ = tx.ExecContext(ctx, "RELEASE chunk_item")
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE chunk_item")
	return err
}

func insertChunk(ctx context.Context, rowStmt, ftsStmt *sql.Stmt, c Chunk) error {
	res, err := rowStmt.ExecContext(ctx, uuid.NewString(), c.DocName, c.ChunkID, c.Content)
	if err != nil {
		return err
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	_, err = ftsStmt.ExecContext(ctx, rowID, strings.Join(Analyze(c.Content), " "))
	return err
}

// ftsQuery turns free text into an FTS5 OR-query over analyzed terms.
// Each term is quoted so FTS5 syntax characters in the input are inert.
func ftsQuery(text string) string {
	terms := Analyze(text)
	seen := make(map[string]struct{}, len(terms))
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		parts = append(parts, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(parts, " OR ")
}

// Search ranks chunks with FTS5's bm25(). bm25() is lower-is-better, so it is
// negated to keep scores higher-is-better like the Bleve backend.
func (s *SQLiteLexicalIndex) Search(ctx context.Context, queryStr string, topK int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.ready()
	if err != nil {
		return nil, err
	}
	match := ftsQuery(queryStr)
	if topK <= 0 || match == "" {
		return []Hit{}, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT c.doc_name, c.chunk_id, c.content, f.score
		FROM (
			SELECT rowid, -bm25(chunks_fts) AS score
			FROM chunks_fts
			WHERE chunks_fts MATCH ?
		) AS f
		JOIN chunks AS c ON c.rowid = f.rowid
		ORDER BY f.score DESC, c.doc_name ASC, c.chunk_id ASC
		LIMIT ?`, match, topK)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, topK)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.DocName, &h.ChunkID, &h.Content, &h.Score); err != nil {
			return nil, docerrors.IndexUnavailableError(IndexLexical, err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	return hits, nil
}

// DeleteByDocument removes a document's rows from both tables atomically.
func (s *SQLiteLexicalIndex) DeleteByDocument(ctx context.Context, docName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.ready()
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE rowid IN (SELECT rowid FROM chunks WHERE doc_name = ?)`, docName); err != nil {
		return 0, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_name = ?`, docName)
	if err != nil {
		return 0, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	return int(n), nil
}

// Documents lists document names with their chunk counts.
func (s *SQLiteLexicalIndex) Documents(ctx context.Context) ([]DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.ready()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT doc_name, COUNT(*) FROM chunks GROUP BY doc_name ORDER BY doc_name`)
	if err != nil {
		return nil, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	defer rows.Close()

	docs := []DocumentInfo{}
	for rows.Next() {
		var d DocumentInfo
		if err := rows.Scan(&d.DocName, &d.Chunks); err != nil {
			return nil, docerrors.IndexUnavailableError(IndexLexical, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DocumentChunks returns one document's chunks by chunk_id.
func (s *SQLiteLexicalIndex) DocumentChunks(ctx context.Context, docName string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.ready()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT doc_name, chunk_id, content FROM chunks WHERE doc_name = ? ORDER BY chunk_id, rowid`, docName)
	if err != nil {
		return nil, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	defer rows.Close()

	chunks := []Chunk{}
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.DocName, &c.ChunkID, &c.Content); err != nil {
			return nil, docerrors.IndexUnavailableError(IndexLexical, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Keys returns the logical key of every row.
func (s *SQLiteLexicalIndex) Keys(ctx context.Context) ([]ChunkKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.ready()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT doc_name, chunk_id FROM chunks`)
	if err != nil {
		return nil, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	defer rows.Close()

	keys := []ChunkKey{}
	for rows.Next() {
		var k ChunkKey
		if err := rows.Scan(&k.DocName, &k.ChunkID); err != nil {
			return nil, docerrors.IndexUnavailableError(IndexLexical, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Count returns the number of rows.
func (s *SQLiteLexicalIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.ready()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteLexicalIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

var _ LexicalIndex = (*SQLiteLexicalIndex)(nil)
