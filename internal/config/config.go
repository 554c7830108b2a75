package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// Project config file names, in lookup order.
var projectConfigFiles = []string{".docrag.yaml", ".docrag.yml", ".docrag.toml"}

// DefaultDataDir is the data directory used when none is configured,
// relative to the project directory.
const DefaultDataDir = ".docrag"

// Config is the complete docrag configuration.
type Config struct {
	Version int           `yaml:"version" json:"version" toml:"version"`
	Paths   PathsConfig   `yaml:"paths" json:"paths" toml:"paths"`
	Chunk   ChunkConfig   `yaml:"chunk" json:"chunk" toml:"chunk"`
	Lexical LexicalConfig `yaml:"lexical" json:"lexical" toml:"lexical"`
	Vector  VectorConfig  `yaml:"vector" json:"vector" toml:"vector"`
	Embed   EmbedConfig   `yaml:"embed" json:"embed" toml:"embed"`
	Search  SearchConfig  `yaml:"search" json:"search" toml:"search"`
	Ingest  IngestConfig  `yaml:"ingest" json:"ingest" toml:"ingest"`
	Server  ServerConfig  `yaml:"server" json:"server" toml:"server"`
	Index   IndexConfig   `yaml:"index" json:"index" toml:"index"`
	Watch   WatchConfig   `yaml:"watch" json:"watch" toml:"watch"`
}

// PathsConfig locates the data and document directories.
type PathsConfig struct {
	// DataDir holds both indexes and the lock file. Relative paths are
	// resolved against the project directory passed to Load.
	DataDir string `yaml:"data_dir" json:"data_dir" toml:"data_dir"`
	// DocsDir is the default target of 'docrag ingest' and 'docrag watch'.
	DocsDir string `yaml:"docs_dir" json:"docs_dir" toml:"docs_dir"`
}

// ChunkConfig configures fixed-width chunking.
type ChunkConfig struct {
	Size int `yaml:"size" json:"size" toml:"size"`
}

// LexicalConfig selects the lexical index backend.
type LexicalConfig struct {
	// Backend is "bleve" (default) or "sqlite".
	Backend string `yaml:"backend" json:"backend" toml:"backend"`
}

// VectorConfig tunes the HNSW vector index.
type VectorConfig struct {
	// Dimensions of a new index. Zero adopts the embedder's dimension.
	Dimensions int `yaml:"dimensions" json:"dimensions" toml:"dimensions"`
	M          int `yaml:"m" json:"m" toml:"m"`
	EfSearch   int `yaml:"ef_search" json:"ef_search" toml:"ef_search"`
	// ExactLimit is the live vector count up to which search scans every
	// vector. Negative always walks the graph.
	ExactLimit int `yaml:"exact_limit" json:"exact_limit" toml:"exact_limit"`
}

// EmbedConfig configures the embedding gateway.
type EmbedConfig struct {
	Provider   string `yaml:"provider" json:"provider" toml:"provider"`
	BaseURL    string `yaml:"base_url" json:"base_url" toml:"base_url"`
	Model      string `yaml:"model" json:"model" toml:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions" toml:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// APIKey is only ever read from the environment.
	APIKey string `yaml:"-" json:"-" toml:"-"`

	Timeout         string  `yaml:"timeout" json:"timeout" toml:"timeout"`
	CacheSize       int     `yaml:"cache_size" json:"cache_size" toml:"cache_size"`
	RatePerSec      float64 `yaml:"rate_per_sec" json:"rate_per_sec" toml:"rate_per_sec"`
	Burst           int     `yaml:"burst" json:"burst" toml:"burst"`
	BreakerFailures int     `yaml:"breaker_failures" json:"breaker_failures" toml:"breaker_failures"`
	BreakerCooldown string  `yaml:"breaker_cooldown" json:"breaker_cooldown" toml:"breaker_cooldown"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	TopK          int    `yaml:"top_k" json:"top_k" toml:"top_k"`
	Strategy      string `yaml:"strategy" json:"strategy" toml:"strategy"`
	Normalization string `yaml:"normalization" json:"normalization" toml:"normalization"`
	// BranchTimeout bounds each sub-search of a hybrid query.
	BranchTimeout string `yaml:"branch_timeout" json:"branch_timeout" toml:"branch_timeout"`
}

// IngestConfig holds ingestion defaults.
type IngestConfig struct {
	WithEmbeddings bool `yaml:"with_embeddings" json:"with_embeddings" toml:"with_embeddings"`
	Concurrency    int  `yaml:"concurrency" json:"concurrency" toml:"concurrency"`
	Replace        bool `yaml:"replace" json:"replace" toml:"replace"`
}

// ServerConfig configures 'docrag serve'.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" json:"http_addr" toml:"http_addr"`
	LogLevel string `yaml:"log_level" json:"log_level" toml:"log_level"`
}

// IndexConfig bounds index operations.
type IndexConfig struct {
	OpTimeout string `yaml:"op_timeout" json:"op_timeout" toml:"op_timeout"`
}

// WatchConfig configures 'docrag watch'.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce" toml:"debounce"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: DefaultDataDir,
		},
		Chunk:   ChunkConfig{Size: 500},
		Lexical: LexicalConfig{Backend: "bleve"},
		Vector: VectorConfig{
			M:          16,
			EfSearch:   64,
			ExactLimit: 2048,
		},
		Embed: EmbedConfig{
			Provider:        "openai",
			Model:           "text-embedding-v3",
			Dimensions:      1024,
			BatchSize:       10,
			Timeout:         "30s",
			CacheSize:       1000,
			RatePerSec:      10,
			Burst:           5,
			BreakerFailures: 5,
			BreakerCooldown: "30s",
		},
		Search: SearchConfig{
			TopK:          5,
			Strategy:      "hybrid",
			Normalization: "none",
			BranchTimeout: "60s",
		},
		Ingest: IngestConfig{
			WithEmbeddings: true,
			Concurrency:    min(runtime.NumCPU(), 4),
		},
		Server: ServerConfig{
			HTTPAddr: "127.0.0.1:8080",
			LogLevel: "info",
		},
		Index: IndexConfig{OpTimeout: "60s"},
		Watch: WatchConfig{Debounce: "500ms"},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
// $XDG_CONFIG_HOME/docrag/config.yaml, or ~/.config/docrag/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project in dir. Sources apply in order
// of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/docrag/config.yaml)
//  3. Project config (.docrag.yaml, .docrag.yml or .docrag.toml in dir)
//  4. dir/.env, which never overrides variables already set
//  5. Environment variables (DOCRAG_*)
func Load(dir string) (*Config, error) {
	return LoadWithFile(dir, "")
}

// LoadWithFile is Load with an explicit project config file replacing the
// lookup in dir. An empty file behaves like Load.
func LoadWithFile(dir, file string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if file != "" {
		if err := cfg.loadFile(file); err != nil {
			return nil, err
		}
	} else if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, docerrors.ConfigError("failed to load .env", err).WithDetail("path", envPath)
		}
	}

	cfg.applyEnvOverrides()

	if cfg.Paths.DataDir != "" && !filepath.IsAbs(cfg.Paths.DataDir) {
		cfg.Paths.DataDir = filepath.Join(dir, cfg.Paths.DataDir)
	}
	if cfg.Paths.DocsDir != "" && !filepath.IsAbs(cfg.Paths.DocsDir) {
		cfg.Paths.DocsDir = filepath.Join(dir, cfg.Paths.DocsDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromDir loads the first project config file found in dir.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range projectConfigFiles {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadFile(path)
		}
	}
	return nil
}

// loadFile decodes path over c, so only keys present in the file change.
// The format follows the extension; anything but .toml is YAML.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return docerrors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err).
			WithDetail("path", path)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, c)
	} else {
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return docerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err).
			WithDetail("path", path)
	}
	return nil
}

// applyEnvOverrides applies DOCRAG_* environment variable overrides.
// Malformed numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	setString(&c.Paths.DataDir, "DOCRAG_DATA_DIR")
	setString(&c.Paths.DocsDir, "DOCRAG_DOCS_DIR")
	setInt(&c.Chunk.Size, "DOCRAG_CHUNK_SIZE")
	setString(&c.Lexical.Backend, "DOCRAG_LEXICAL_BACKEND")
	setInt(&c.Vector.Dimensions, "DOCRAG_VECTOR_DIMENSIONS")

	setString(&c.Embed.Provider, "DOCRAG_EMBED_PROVIDER")
	setString(&c.Embed.BaseURL, "DOCRAG_EMBED_BASE_URL")
	setString(&c.Embed.Model, "DOCRAG_EMBED_MODEL")
	setInt(&c.Embed.Dimensions, "DOCRAG_EMBED_DIMENSIONS")
	setString(&c.Embed.Timeout, "DOCRAG_EMBED_TIMEOUT")
	setInt(&c.Embed.CacheSize, "DOCRAG_EMBED_CACHE_SIZE")
	for _, key := range []string{"DOCRAG_EMBED_API_KEY", "DASHSCOPE_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"} {
		if v := os.Getenv(key); v != "" {
			c.Embed.APIKey = v
			break
		}
	}

	setInt(&c.Search.TopK, "DOCRAG_TOP_K")
	setString(&c.Search.Strategy, "DOCRAG_STRATEGY")
	setString(&c.Search.Normalization, "DOCRAG_NORMALIZATION")
	setBool(&c.Ingest.WithEmbeddings, "DOCRAG_WITH_EMBEDDINGS")
	setInt(&c.Ingest.Concurrency, "DOCRAG_CONCURRENCY")
	setString(&c.Server.HTTPAddr, "DOCRAG_HTTP_ADDR")
	setString(&c.Server.LogLevel, "DOCRAG_LOG_LEVEL")
	setString(&c.Index.OpTimeout, "DOCRAG_OP_TIMEOUT")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

// Validate validates the configuration and returns a ConfigError if invalid.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return invalid("paths.data_dir must not be empty", "")
	}
	if c.Chunk.Size <= 0 {
		return invalid(fmt.Sprintf("chunk.size must be positive, got %d", c.Chunk.Size), "")
	}
	if !oneOf(c.Lexical.Backend, "bleve", "sqlite") {
		return invalid(fmt.Sprintf("lexical.backend must be 'bleve' or 'sqlite', got %q", c.Lexical.Backend), "")
	}
	if c.Vector.Dimensions < 0 || c.Embed.Dimensions < 0 {
		return invalid("dimensions must not be negative", "")
	}
	if c.Vector.Dimensions > 0 && c.Embed.Dimensions > 0 && c.Vector.Dimensions != c.Embed.Dimensions {
		return invalid(fmt.Sprintf("vector.dimensions (%d) differs from embed.dimensions (%d)",
			c.Vector.Dimensions, c.Embed.Dimensions), "leave vector.dimensions at 0 to follow the embedder")
	}
	if !oneOf(c.Embed.Provider, "openai", "dashscope", "ollama", "gemini", "google", "static") {
		return invalid(fmt.Sprintf("embed.provider must be 'openai', 'ollama', 'gemini' or 'static', got %q", c.Embed.Provider), "")
	}
	if c.Embed.RatePerSec < 0 || c.Embed.Burst < 0 || c.Embed.BreakerFailures < 0 {
		return invalid("embed rate, burst and breaker_failures must not be negative", "")
	}
	if c.Search.TopK <= 0 {
		return invalid(fmt.Sprintf("search.top_k must be positive, got %d", c.Search.TopK), "")
	}
	if !oneOf(c.Search.Strategy, "lexical", "vector", "hybrid") {
		return invalid(fmt.Sprintf("search.strategy must be 'lexical', 'vector' or 'hybrid', got %q", c.Search.Strategy), "")
	}
	if !oneOf(c.Search.Normalization, "", "none", "minmax") {
		return invalid(fmt.Sprintf("search.normalization must be 'none' or 'minmax', got %q", c.Search.Normalization), "")
	}
	if c.Ingest.Concurrency < 0 {
		return invalid("ingest.concurrency must not be negative", "")
	}
	if !oneOf(c.Server.LogLevel, "debug", "info", "warn", "error") {
		return invalid(fmt.Sprintf("server.log_level must be 'debug', 'info', 'warn' or 'error', got %q", c.Server.LogLevel), "")
	}

	for field, v := range map[string]string{
		"embed.timeout":          c.Embed.Timeout,
		"embed.breaker_cooldown": c.Embed.BreakerCooldown,
		"search.branch_timeout":  c.Search.BranchTimeout,
		"index.op_timeout":       c.Index.OpTimeout,
		"watch.debounce":         c.Watch.Debounce,
	} {
		if _, err := parseDuration(v); err != nil {
			return invalid(fmt.Sprintf("%s: %v", field, err), "use a Go duration such as 30s or 500ms")
		}
	}
	return nil
}

func invalid(msg, suggestion string) error {
	err := docerrors.ConfigError(msg, nil)
	if suggestion != "" {
		err = err.WithSuggestion(suggestion)
	}
	return err
}

func oneOf(v string, options ...string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// parseDuration parses a Go duration. Empty is zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

func mustDuration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}

// EmbedTimeout returns embed.timeout parsed.
func (c *Config) EmbedTimeout() time.Duration { return mustDuration(c.Embed.Timeout) }

// BreakerCooldown returns embed.breaker_cooldown parsed.
func (c *Config) BreakerCooldown() time.Duration { return mustDuration(c.Embed.BreakerCooldown) }

// BranchTimeout returns search.branch_timeout parsed.
func (c *Config) BranchTimeout() time.Duration { return mustDuration(c.Search.BranchTimeout) }

// OpTimeout returns index.op_timeout parsed.
func (c *Config) OpTimeout() time.Duration { return mustDuration(c.Index.OpTimeout) }

// WatchDebounce returns watch.debounce parsed.
func (c *Config) WatchDebounce() time.Duration { return mustDuration(c.Watch.Debounce) }

// WriteYAML writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
