package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers "sqlite"
)

// MetricsFileName is the query log database inside the data directory.
const MetricsFileName = "metrics.db"

// ZeroResultLimit bounds the persisted zero-result query log.
const ZeroResultLimit = 100

// SQLiteMetricsStore keeps the query log and daily activity totals of one
// data directory in SQLite.
type SQLiteMetricsStore struct {
	db   *sql.DB
	owns bool
}

// NewSQLiteMetricsStore wraps an open database. The schema must exist
// (see InitTelemetrySchema) and Close leaves db open.
func NewSQLiteMetricsStore(db *sql.DB) (*SQLiteMetricsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLiteMetricsStore{db: db}, nil
}

// OpenSQLiteMetricsStore opens or creates the metrics database at path and
// ensures its schema. Close closes the database.
func OpenSQLiteMetricsStore(path string) (*SQLiteMetricsStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create metrics directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open metrics database: %w", err)
	}
	if err := InitTelemetrySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteMetricsStore{db: db, owns: true}, nil
}

// InitTelemetrySchema creates the telemetry tables if they don't exist.
// The three *_daily tables share one shape: a running total per (day, series).
func InitTelemetrySchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS strategy_daily (
		day    TEXT NOT NULL,
		series TEXT NOT NULL,
		total  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (day, series)
	);

	CREATE TABLE IF NOT EXISTS latency_daily (
		day    TEXT NOT NULL,
		series TEXT NOT NULL,
		total  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (day, series)
	);

	-- series is "<counter>|<label>", e.g. "docrag.search.branch_failures|branch=vector"
	CREATE TABLE IF NOT EXISTS activity_daily (
		day    TEXT NOT NULL,
		series TEXT NOT NULL,
		total  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (day, series)
	);

	CREATE TABLE IF NOT EXISTS query_terms (
		term      TEXT PRIMARY KEY,
		hits      INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_hits ON query_terms(hits DESC);

	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		query     TEXT NOT NULL,
		logged_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// addDaily adds totals to the day's rows of table in one transaction.
func (s *SQLiteMetricsStore) addDaily(table, day string, totals map[string]int64) error {
	if len(totals) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin %s update: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO ` + table + ` (day, series, total) VALUES (?, ?, ?)
		ON CONFLICT(day, series) DO UPDATE SET total = total + excluded.total`)
	if err != nil {
		return fmt.Errorf("prepare %s update: %w", table, err)
	}
	defer stmt.Close()

	for series, n := range totals {
		if _, err := stmt.Exec(day, series, n); err != nil {
			return fmt.Errorf("add %s %q: %w", table, series, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s update: %w", table, err)
	}
	return nil
}

// sumDaily returns the per-series totals of table between from and to,
// both inclusive.
func (s *SQLiteMetricsStore) sumDaily(table, from, to string) (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT series, SUM(total) FROM `+table+`
		WHERE day >= ? AND day <= ? GROUP BY series`, from, to)
	if err != nil {
		return nil, fmt.Errorf("sum %s: %w", table, err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var series string
		var n int64
		if err := rows.Scan(&series, &n); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		totals[series] = n
	}
	return totals, rows.Err()
}

// SaveQueryTypeCounts adds to the day's per-strategy query totals.
func (s *SQLiteMetricsStore) SaveQueryTypeCounts(date string, counts map[QueryType]int64) error {
	totals := make(map[string]int64, len(counts))
	for qt, n := range counts {
		totals[string(qt)] += n
	}
	return s.addDaily("strategy_daily", date, totals)
}

// GetQueryTypeCounts returns per-strategy query totals for a date range.
func (s *SQLiteMetricsStore) GetQueryTypeCounts(from, to string) (map[QueryType]int64, error) {
	totals, err := s.sumDaily("strategy_daily", from, to)
	if err != nil {
		return nil, err
	}
	counts := make(map[QueryType]int64, len(totals))
	for series, n := range totals {
		counts[QueryType(series)] = n
	}
	return counts, nil
}

// SaveLatencyCounts adds to the day's latency histogram.
func (s *SQLiteMetricsStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	totals := make(map[string]int64, len(counts))
	for b, n := range counts {
		totals[string(b)] += n
	}
	return s.addDaily("latency_daily", date, totals)
}

// GetLatencyCounts returns the latency histogram for a date range.
func (s *SQLiteMetricsStore) GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	totals, err := s.sumDaily("latency_daily", from, to)
	if err != nil {
		return nil, err
	}
	counts := make(map[LatencyBucket]int64, len(totals))
	for series, n := range totals {
		counts[LatencyBucket(series)] = n
	}
	return counts, nil
}

const activitySep = "|"

// SaveActivityCounts adds collected counter deltas to the day's totals.
func (s *SQLiteMetricsStore) SaveActivityCounts(date string, counts []ActivityCount) error {
	totals := make(map[string]int64, len(counts))
	for _, c := range counts {
		totals[c.Counter+activitySep+c.Label] += c.Count
	}
	return s.addDaily("activity_daily", date, totals)
}

// GetActivityCounts returns counter totals for a date range, ordered by
// counter then label.
func (s *SQLiteMetricsStore) GetActivityCounts(from, to string) ([]ActivityCount, error) {
	totals, err := s.sumDaily("activity_daily", from, to)
	if err != nil {
		return nil, err
	}
	counts := make([]ActivityCount, 0, len(totals))
	for series, n := range totals {
		counts = append(counts, splitActivitySeries(series, n))
	}
	sortActivity(counts)
	return counts, nil
}

// UpsertTermCounts adds to the running hit count of each query term.
func (s *SQLiteMetricsStore) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin term update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO query_terms (term, hits, last_seen) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET hits = hits + excluded.hits, last_seen = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("prepare term update: %w", err)
	}
	defer stmt.Close()

	for term, n := range terms {
		if _, err := stmt.Exec(term, n); err != nil {
			return fmt.Errorf("add term %q: %w", term, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit term update: %w", err)
	}
	return nil
}

// GetTopTerms returns the limit most frequent query terms.
func (s *SQLiteMetricsStore) GetTopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`SELECT term, hits FROM query_terms ORDER BY hits DESC, term ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// AddZeroResultQuery logs a query that found nothing, keeping the newest
// ZeroResultLimit entries.
func (s *SQLiteMetricsStore) AddZeroResultQuery(query string, at time.Time) error {
	if _, err := s.db.Exec(`INSERT INTO zero_result_queries (query, logged_at) VALUES (?, ?)`, query, at); err != nil {
		return fmt.Errorf("log zero-result query: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM zero_result_queries WHERE id <= (
			SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT 1 OFFSET ?)`, ZeroResultLimit); err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// GetZeroResultQueries returns the newest zero-result queries first.
func (s *SQLiteMetricsStore) GetZeroResultQueries(limit int) ([]string, error) {
	rows, err := s.db.Query(`SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan zero-result query: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// Close closes the database when the store opened it.
func (s *SQLiteMetricsStore) Close() error {
	if !s.owns {
		return nil
	}
	return s.db.Close()
}

var (
	_ QueryMetricsStore = (*SQLiteMetricsStore)(nil)
	_ ActivityStore     = (*SQLiteMetricsStore)(nil)
)
