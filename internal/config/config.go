package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the supportgraph worker configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	AMQP       AMQPConfig       `yaml:"amqp"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Retry      RetryConfig      `yaml:"retry"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds ops API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds ops HTTP server settings. Port 0 disables the server.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings (idempotency, vectors, embedding cache).
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
	IdempotencyTTLH  int      `yaml:"idempotency_ttl_hours"` // 0 = no expiry
	EmbedCacheTTLH   int      `yaml:"embedding_cache_ttl_hours"`
}

// PostgresConfig holds the entity, job and suggestion database settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// AMQPConfig holds queue worker settings. An empty URL disables the consumer.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey              string  `yaml:"api_key"`
	BaseURL             string  `yaml:"base_url"`
	Model               string  `yaml:"model"`
	Dimensions          int     `yaml:"dimensions"`
	DocumentInstruction string  `yaml:"document_instruction"`
	QueryInstruction    string  `yaml:"query_instruction"`
	RequestsPerSecond   float64 `yaml:"requests_per_second"`
	TimeoutSec          int     `yaml:"timeout_sec"`
}

// LLMConfig holds structured-generation provider settings.
type LLMConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	Temperature       float32 `yaml:"temperature"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// PipelineConfig holds orchestrator and processor settings.
type PipelineConfig struct {
	Concurrency      int      `yaml:"concurrency"`
	EntityTimeoutSec int      `yaml:"entity_timeout_sec"`
	ChunkSize        int      `yaml:"chunk_size"` // characters per transcript chunk
	Labels           []string `yaml:"labels"`
	Statuses         []string `yaml:"statuses"`
	AdvisoryLocks    bool     `yaml:"advisory_locks"`
}

// SimilarityConfig holds default scoring knobs; jobs may override them.
// Absent keys take the built-in defaults, an explicit 0 is kept.
type SimilarityConfig struct {
	Limit            *int     `yaml:"limit"`
	ScoreThreshold   *float64 `yaml:"score_threshold"`
	VectorWeight     *float64 `yaml:"vector_weight"`
	KeywordWeight    *float64 `yaml:"keyword_weight"`
	KeywordSteepness *float64 `yaml:"keyword_steepness"`
	CutoffScore      *float64 `yaml:"cutoff_score"`
	MinScore         *float64 `yaml:"min_score"`
}

func (s *SimilarityConfig) applyDefaults() {
	if s.VectorWeight == nil && s.KeywordWeight == nil {
		s.VectorWeight, s.KeywordWeight = ptr(0.6), ptr(0.4)
	}
	if s.VectorWeight == nil {
		s.VectorWeight = ptr(0.0)
	}
	if s.KeywordWeight == nil {
		s.KeywordWeight = ptr(0.0)
	}
	if s.Limit == nil {
		s.Limit = ptr(10)
	}
	if s.ScoreThreshold == nil {
		s.ScoreThreshold = ptr(0.0)
	}
	if s.KeywordSteepness == nil {
		s.KeywordSteepness = ptr(10.0)
	}
	if s.CutoffScore == nil {
		s.CutoffScore = ptr(0.3)
	}
	if s.MinScore == nil {
		s.MinScore = ptr(0.0)
	}
}

func (s SimilarityConfig) validate() []error {
	s.applyDefaults()
	var errs []error
	if *s.Limit < 1 {
		errs = append(errs, fmt.Errorf("similarity.limit must be positive, got %d", *s.Limit))
	}
	if *s.VectorWeight < 0 || *s.KeywordWeight < 0 {
		errs = append(errs, errors.New("similarity weights must be non-negative"))
	}
	if *s.VectorWeight+*s.KeywordWeight == 0 {
		errs = append(errs, errors.New("similarity needs at least one positive weight"))
	}
	for name, v := range map[string]float64{
		"score_threshold": *s.ScoreThreshold,
		"cutoff_score":    *s.CutoffScore,
		"min_score":       *s.MinScore,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("similarity.%s must be in [0,1], got %v", name, v))
		}
	}
	return errs
}

func ptr[T any](v T) *T { return &v }

// RetryConfig holds the provider retry policy.
type RetryConfig struct {
	MaxAttempts         int     `yaml:"max_attempts"`
	BaseDelayMS         int     `yaml:"base_delay_ms"`
	MaxDelayMS          int     `yaml:"max_delay_ms"`
	Multiplier          float64 `yaml:"multiplier"`
	RateLimitMultiplier float64 `yaml:"rate_limit_multiplier"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML after ${VAR} substitution, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 300 // POST /jobs runs synchronously
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "supportgraph:"
	}
	if c.Database.HNSWM <= 0 {
		c.Database.HNSWM = 16
	}
	if c.Database.HNSWEFConstruct <= 0 {
		c.Database.HNSWEFConstruct = 200
	}
	if c.Database.EmbedCacheTTLH <= 0 {
		c.Database.EmbedCacheTTLH = 24 * 7
	}
	if c.Postgres.MaxConns <= 0 {
		c.Postgres.MaxConns = 10
	}
	if c.AMQP.Queue == "" {
		c.AMQP.Queue = "supportgraph.entities"
	}
	if c.AMQP.Prefetch <= 0 {
		c.AMQP.Prefetch = 1
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 60
	}
	if c.Pipeline.Concurrency <= 0 {
		c.Pipeline.Concurrency = 5
	}
	if c.Pipeline.EntityTimeoutSec <= 0 {
		c.Pipeline.EntityTimeoutSec = 120
	}
	if c.Pipeline.ChunkSize <= 0 {
		c.Pipeline.ChunkSize = 2000
	}
	if len(c.Pipeline.Statuses) == 0 {
		c.Pipeline.Statuses = []string{"open", "pending", "resolved", "closed"}
	}
	c.Similarity.applyDefaults()
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.BaseDelayMS <= 0 {
		c.Retry.BaseDelayMS = 500
	}
	if c.Retry.MaxDelayMS <= 0 {
		c.Retry.MaxDelayMS = 10_000
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = 2
	}
	if c.Retry.RateLimitMultiplier <= 0 {
		c.Retry.RateLimitMultiplier = 2
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 0 and 65535, got %d", c.HTTP.Port))
	}
	if len(c.Database.Addrs) == 0 {
		errs = append(errs, errors.New("database.addrs is required"))
	}
	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, errors.New("embedding.model is required"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	errs = append(errs, c.Similarity.validate()...)
	return errors.Join(errs...)
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
