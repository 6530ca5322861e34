package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// PathStrategy controls how Document.source is stored and later resolved.
type PathStrategy string

const (
	PathStrategyAbsolute PathStrategy = "absolute"
	PathStrategyRelative PathStrategy = "relative"
)

// Config represents the complete ragcore configuration.
// It mirrors the environment knobs described in specification Section 6.
type Config struct {
	Version int `yaml:"version" json:"version"`

	Paths  PathsConfig  `yaml:"paths" json:"paths"`
	Chunk  ChunkConfig  `yaml:"chunk" json:"chunk"`
	Embed  EmbedConfig  `yaml:"embed" json:"embed"`
	Index  IndexConfig  `yaml:"index" json:"index"`
	Worker WorkerConfig `yaml:"worker" json:"worker"`
	Search SearchConfig `yaml:"search" json:"search"`
	Log    LogConfig    `yaml:"log" json:"log"`
}

// PathsConfig configures where the core's on-disk state lives.
type PathsConfig struct {
	// StorePath is the relational store file (SQLite).
	StorePath string `yaml:"store_path" json:"store_path"`
	// IndexPath is the binary vector index file.
	IndexPath string `yaml:"index_path" json:"index_path"`
	// ContentDir is the content-addressed store root.
	ContentDir string `yaml:"content_dir" json:"content_dir"`
	// WorkingDir resolves relative document paths.
	WorkingDir string `yaml:"working_dir" json:"working_dir"`
	// Strategy controls how Document.source is stored ("absolute" or "relative").
	Strategy PathStrategy `yaml:"strategy" json:"strategy"`
}

// ChunkConfig configures the three-tier chunker.
type ChunkConfig struct {
	// ChunkSize is the target token count per chunk (default 250; recommended 200-300).
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the overlap tail in tokens (default 50; must be <= 50% of ChunkSize).
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// EmbedConfig configures the embedder abstraction.
type EmbedConfig struct {
	// Mode selects the committed embedding mode ("text" or "multimodal").
	Mode string `yaml:"mode" json:"mode"`
	// Model is the embedding model name, bound into SystemInfo on first ingest.
	Model string `yaml:"model" json:"model"`
	// Endpoint is the local model server's base URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// BatchSize is the number of items embedded per request (default 32).
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// MaxTokens bounds per-item input length before truncation (default 512; 77 for CLIP text).
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// CacheSize is the LRU capacity for the embedding cache (default 2048).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// RerankEndpoint is the cross-encoder reranker's local server URL, empty disables reranking.
	RerankEndpoint string `yaml:"rerank_endpoint" json:"rerank_endpoint"`
}

// IndexConfig configures the HNSW vector index parameters (spec §4.2/§4.3).
type IndexConfig struct {
	M              int `yaml:"m" json:"m"`
	EfConstruction int `yaml:"ef_construction" json:"ef_construction"`
	EfSearch       int `yaml:"ef_search" json:"ef_search"`
	Seed           int `yaml:"seed" json:"seed"`
	MaxElements    int `yaml:"max_elements" json:"max_elements"`
}

// WorkerConfig configures the isolated vector index worker process.
type WorkerConfig struct {
	// SocketDir holds the Unix domain socket the worker listens on.
	SocketDir string `yaml:"socket_dir" json:"socket_dir"`
	// PIDFileDir holds the worker's PID file for liveness checks.
	PIDFileDir string `yaml:"pidfile_dir" json:"pidfile_dir"`
	// StartTimeoutSeconds bounds how long the client waits for the worker to come up.
	StartTimeoutSeconds int `yaml:"start_timeout_seconds" json:"start_timeout_seconds"`
	// RestartBackoffSeconds is loaded and merged like every other field,
	// but nothing outside this package reads it: a crashed worker is not
	// restarted automatically.
	RestartBackoffSeconds int `yaml:"restart_backoff_seconds" json:"restart_backoff_seconds"`
	// MaxRestartAttempts is loaded and merged like every other field, but
	// nothing outside this package reads it.
	MaxRestartAttempts int `yaml:"max_restart_attempts" json:"max_restart_attempts"`
}

// SearchConfig configures default search behavior.
type SearchConfig struct {
	// DefaultTopK is loaded and merged like every other field, but the
	// search command and coordinator do not read it: an unset topK falls
	// back to search.DefaultTopK.
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`
	// RerankCandidateMultiplier is loaded and merged like every other
	// field, but the search coordinator does not read it; its rerank
	// candidate widening uses its own fixed multiplier of 3.
	RerankCandidateMultiplier int `yaml:"rerank_candidate_multiplier" json:"rerank_candidate_multiplier"`
	// MinRerankCandidates is loaded and merged like every other field, but
	// the search coordinator does not read it; its widened candidate count
	// uses its own fixed floor of 30.
	MinRerankCandidates int `yaml:"min_rerank_candidates" json:"min_rerank_candidates"`
}

// LogConfig configures the ambient slog-based logging stack.
type LogConfig struct {
	Level        string `yaml:"level" json:"level"`
	FilePath     string `yaml:"file_path" json:"file_path"`
	MaxSizeMB    int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups   int    `yaml:"max_backups" json:"max_backups"`
	MirrorStderr bool   `yaml:"mirror_stderr" json:"mirror_stderr"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	return &Config{
		Version: 1,
		Paths: PathsConfig{
			StorePath:  filepath.Join(wd, ".ragcore", "store.db"),
			IndexPath:  filepath.Join(wd, ".ragcore", "index.rlvi"),
			ContentDir: filepath.Join(wd, ".ragcore", "content"),
			WorkingDir: wd,
			Strategy:   PathStrategyRelative,
		},
		Chunk: ChunkConfig{
			ChunkSize:    250,
			ChunkOverlap: 50,
		},
		Embed: EmbedConfig{
			Mode:           "text",
			Model:          "all-MiniLM-L6-v2",
			Endpoint:       "http://localhost:8008",
			BatchSize:      32,
			MaxTokens:      512,
			CacheSize:      2048,
			RerankEndpoint: "",
		},
		Index: IndexConfig{
			M:              16,
			EfConstruction: 200,
			EfSearch:       64,
			Seed:           100,
			MaxElements:    100000,
		},
		Worker: WorkerConfig{
			SocketDir:             filepath.Join(wd, ".ragcore", "run"),
			PIDFileDir:            filepath.Join(wd, ".ragcore", "run"),
			StartTimeoutSeconds:   10,
			RestartBackoffSeconds: 1,
			MaxRestartAttempts:    3,
		},
		Search: SearchConfig{
			DefaultTopK:               10,
			RerankCandidateMultiplier: 3,
			MinRerankCandidates:       30,
		},
		Log: LogConfig{
			Level:        "info",
			FilePath:     filepath.Join(wd, ".ragcore", "ragcore.log"),
			MaxSizeMB:    10,
			MaxBackups:   3,
			MirrorStderr: false,
		},
	}
}

// Load loads configuration from the given directory, applying overrides in
// order of increasing precedence:
//  1. Hardcoded defaults
//  2. Project config (ragcore.yaml in dir)
//  3. Environment variables (RAGCORE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from ragcore.yaml or ragcore.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, "ragcore.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, "ragcore.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.StorePath != "" {
		c.Paths.StorePath = other.Paths.StorePath
	}
	if other.Paths.IndexPath != "" {
		c.Paths.IndexPath = other.Paths.IndexPath
	}
	if other.Paths.ContentDir != "" {
		c.Paths.ContentDir = other.Paths.ContentDir
	}
	if other.Paths.WorkingDir != "" {
		c.Paths.WorkingDir = other.Paths.WorkingDir
	}
	if other.Paths.Strategy != "" {
		c.Paths.Strategy = other.Paths.Strategy
	}

	if other.Chunk.ChunkSize != 0 {
		c.Chunk.ChunkSize = other.Chunk.ChunkSize
	}
	if other.Chunk.ChunkOverlap != 0 {
		c.Chunk.ChunkOverlap = other.Chunk.ChunkOverlap
	}

	if other.Embed.Mode != "" {
		c.Embed.Mode = other.Embed.Mode
	}
	if other.Embed.Model != "" {
		c.Embed.Model = other.Embed.Model
	}
	if other.Embed.Endpoint != "" {
		c.Embed.Endpoint = other.Embed.Endpoint
	}
	if other.Embed.BatchSize != 0 {
		c.Embed.BatchSize = other.Embed.BatchSize
	}
	if other.Embed.MaxTokens != 0 {
		c.Embed.MaxTokens = other.Embed.MaxTokens
	}
	if other.Embed.CacheSize != 0 {
		c.Embed.CacheSize = other.Embed.CacheSize
	}
	if other.Embed.RerankEndpoint != "" {
		c.Embed.RerankEndpoint = other.Embed.RerankEndpoint
	}

	if other.Index.M != 0 {
		c.Index.M = other.Index.M
	}
	if other.Index.EfConstruction != 0 {
		c.Index.EfConstruction = other.Index.EfConstruction
	}
	if other.Index.EfSearch != 0 {
		c.Index.EfSearch = other.Index.EfSearch
	}
	if other.Index.Seed != 0 {
		c.Index.Seed = other.Index.Seed
	}
	if other.Index.MaxElements != 0 {
		c.Index.MaxElements = other.Index.MaxElements
	}

	if other.Worker.SocketDir != "" {
		c.Worker.SocketDir = other.Worker.SocketDir
	}
	if other.Worker.PIDFileDir != "" {
		c.Worker.PIDFileDir = other.Worker.PIDFileDir
	}
	if other.Worker.StartTimeoutSeconds != 0 {
		c.Worker.StartTimeoutSeconds = other.Worker.StartTimeoutSeconds
	}
	if other.Worker.RestartBackoffSeconds != 0 {
		c.Worker.RestartBackoffSeconds = other.Worker.RestartBackoffSeconds
	}
	if other.Worker.MaxRestartAttempts != 0 {
		c.Worker.MaxRestartAttempts = other.Worker.MaxRestartAttempts
	}

	if other.Search.DefaultTopK != 0 {
		c.Search.DefaultTopK = other.Search.DefaultTopK
	}
	if other.Search.RerankCandidateMultiplier != 0 {
		c.Search.RerankCandidateMultiplier = other.Search.RerankCandidateMultiplier
	}
	if other.Search.MinRerankCandidates != 0 {
		c.Search.MinRerankCandidates = other.Search.MinRerankCandidates
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.FilePath != "" {
		c.Log.FilePath = other.Log.FilePath
	}
	if other.Log.MaxSizeMB != 0 {
		c.Log.MaxSizeMB = other.Log.MaxSizeMB
	}
	if other.Log.MaxBackups != 0 {
		c.Log.MaxBackups = other.Log.MaxBackups
	}
	if other.Log.MirrorStderr {
		c.Log.MirrorStderr = other.Log.MirrorStderr
	}
}

// applyEnvOverrides applies RAGCORE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGCORE_STORE_PATH"); v != "" {
		c.Paths.StorePath = v
	}
	if v := os.Getenv("RAGCORE_INDEX_PATH"); v != "" {
		c.Paths.IndexPath = v
	}
	if v := os.Getenv("RAGCORE_CONTENT_DIR"); v != "" {
		c.Paths.ContentDir = v
	}
	if v := os.Getenv("RAGCORE_WORKING_DIR"); v != "" {
		c.Paths.WorkingDir = v
	}
	if v := os.Getenv("RAGCORE_PATH_STRATEGY"); v != "" {
		c.Paths.Strategy = PathStrategy(v)
	}
	if v := os.Getenv("RAGCORE_EMBED_MODE"); v != "" {
		c.Embed.Mode = v
	}
	if v := os.Getenv("RAGCORE_EMBED_MODEL"); v != "" {
		c.Embed.Model = v
	}
	if v := os.Getenv("RAGCORE_EMBED_ENDPOINT"); v != "" {
		c.Embed.Endpoint = v
	}
	if v := os.Getenv("RAGCORE_RERANK_ENDPOINT"); v != "" {
		c.Embed.RerankEndpoint = v
	}
	if v := os.Getenv("RAGCORE_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunk.ChunkSize = n
		}
	}
	if v := os.Getenv("RAGCORE_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Chunk.ChunkOverlap = n
		}
	}
	if v := os.Getenv("RAGCORE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Chunk.ChunkSize <= 0 {
		return fmt.Errorf("chunk.chunk_size must be positive, got %d", c.Chunk.ChunkSize)
	}
	if c.Chunk.ChunkOverlap < 0 {
		return fmt.Errorf("chunk.chunk_overlap must be non-negative, got %d", c.Chunk.ChunkOverlap)
	}
	if c.Chunk.ChunkOverlap > c.Chunk.ChunkSize/2 {
		return fmt.Errorf("chunk.chunk_overlap must be at most 50%% of chunk_size, got %d/%d", c.Chunk.ChunkOverlap, c.Chunk.ChunkSize)
	}

	switch c.Paths.Strategy {
	case PathStrategyAbsolute, PathStrategyRelative:
	default:
		return fmt.Errorf("paths.strategy must be 'absolute' or 'relative', got %q", c.Paths.Strategy)
	}

	validModes := map[string]bool{"text": true, "multimodal": true}
	if !validModes[strings.ToLower(c.Embed.Mode)] {
		return fmt.Errorf("embed.mode must be 'text' or 'multimodal', got %q", c.Embed.Mode)
	}
	if c.Embed.BatchSize <= 0 {
		return fmt.Errorf("embed.batch_size must be positive, got %d", c.Embed.BatchSize)
	}

	if c.Index.M <= 0 {
		return fmt.Errorf("index.m must be positive, got %d", c.Index.M)
	}
	if c.Index.EfConstruction <= 0 {
		return fmt.Errorf("index.ef_construction must be positive, got %d", c.Index.EfConstruction)
	}
	if c.Index.EfSearch <= 0 {
		return fmt.Errorf("index.ef_search must be positive, got %d", c.Index.EfSearch)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Log.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResolveSourcePath applies the configured path-storage strategy to a
// filesystem path, returning what should be persisted as Document.source.
func (c *Config) ResolveSourcePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s: %w", path, err)
	}

	if c.Paths.Strategy == PathStrategyAbsolute {
		return abs, nil
	}

	rel, err := filepath.Rel(c.Paths.WorkingDir, abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve relative path for %s: %w", path, err)
	}
	return rel, nil
}

// AbsoluteSourcePath reverses ResolveSourcePath, returning a path usable for
// filesystem access regardless of which strategy stored it.
func (c *Config) AbsoluteSourcePath(source string) string {
	if filepath.IsAbs(source) {
		return source
	}
	return filepath.Join(c.Paths.WorkingDir, source)
}

// DefaultIndexWorkers returns a sensible worker-pool size for batch I/O.
func DefaultIndexWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}
