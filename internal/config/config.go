package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// Database drivers.
const (
	DriverRedis    = "redis"
	DriverValkey   = "valkey"
	DriverPgvector = "pgvector"
	DriverMemory   = "memory"
)

// Config holds the pdfrag server configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Generation  GenerationConfig  `yaml:"generation"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Index       IndexConfig       `yaml:"index"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
	Uploads     UploadsConfig     `yaml:"uploads"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey, pgvector, memory (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DSN              string   `yaml:"dsn"` // pgvector only
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"`
	BaseURL             string `yaml:"base_url"`
	APIKey              string `yaml:"api_key"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	SendDimensions      bool   `yaml:"send_dimensions"` // forward "dimensions" to the provider
	Concurrency         int    `yaml:"concurrency"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
	Cache               bool   `yaml:"cache"`
	CacheTTLHours       int    `yaml:"cache_ttl_hours"` // 0 = keep forever
}

// GenerationConfig holds the chat model settings.
type GenerationConfig struct {
	Provider     string  `yaml:"provider"`
	BaseURL      string  `yaml:"base_url"`
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	SystemPrompt string  `yaml:"system_prompt"`
}

// ChunkingConfig holds chunker settings.
type ChunkingConfig struct {
	Strategy string `yaml:"strategy"` // sentence, recursive
	Size     int    `yaml:"size"`
	Overlap  *int   `yaml:"overlap"` // default min(200, size/5)
}

// OverlapOrZero dereferences Overlap.
func (c ChunkingConfig) OverlapOrZero() int {
	if c.Overlap == nil {
		return 0
	}
	return *c.Overlap
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	HNSWM           int   `yaml:"hnsw_m"`
	HNSWEFConstruct int   `yaml:"hnsw_ef_construction"`
	ReplaceOnIngest *bool `yaml:"replace_on_ingest"` // default true
	MaxTopK         int   `yaml:"max_top_k"`
}

// CoordinatorConfig holds the local run engine settings.
type CoordinatorConfig struct {
	Workers     int    `yaml:"workers"`
	MaxAttempts int    `yaml:"max_attempts"`
	RetryBaseMS int    `yaml:"retry_base_ms"`
	RetryMaxSec int    `yaml:"retry_max_sec"`
	RunStore    string `yaml:"run_store"` // memory, database (default: database for redis/valkey)
	RunTTLHours int    `yaml:"run_ttl_hours"`
	EventKey    string `yaml:"event_key"`
}

// UploadsConfig holds the shared uploads directory.
type UploadsConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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

// LoadDotEnv loads variables from the given .env files (default ".env") without
// overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverMemory
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "pdfrag:"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "ollama"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "http://localhost:11434/v1"
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = "ollama"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "nomic-embed-text"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = domain.EmbedDim
	}
	if c.Embedding.Concurrency <= 0 {
		c.Embedding.Concurrency = 1
	}

	if c.Generation.Provider == "" {
		c.Generation.Provider = c.Embedding.Provider
	}
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = c.Embedding.BaseURL
	}
	if c.Generation.APIKey == "" {
		c.Generation.APIKey = c.Embedding.APIKey
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gemma3:1b"
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 1024
	}

	if c.Chunking.Strategy == "" {
		c.Chunking.Strategy = "sentence"
	}
	if c.Chunking.Size <= 0 {
		c.Chunking.Size = 1000
	}
	if c.Chunking.Overlap == nil {
		overlap := min(200, c.Chunking.Size/5)
		c.Chunking.Overlap = &overlap
	}

	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Index.ReplaceOnIngest == nil {
		replace := true
		c.Index.ReplaceOnIngest = &replace
	}
	if c.Index.MaxTopK <= 0 {
		c.Index.MaxTopK = 20
	}

	if c.Coordinator.Workers <= 0 {
		c.Coordinator.Workers = 4
	}
	if c.Coordinator.MaxAttempts <= 0 {
		c.Coordinator.MaxAttempts = 3
	}
	if c.Coordinator.RetryBaseMS <= 0 {
		c.Coordinator.RetryBaseMS = 500
	}
	if c.Coordinator.RetryMaxSec <= 0 {
		c.Coordinator.RetryMaxSec = 30
	}
	if c.Coordinator.RunStore == "" {
		c.Coordinator.RunStore = "memory"
		if c.Database.Driver == DriverRedis || c.Database.Driver == DriverValkey {
			c.Coordinator.RunStore = "database"
		}
	}
	if c.Coordinator.RunTTLHours <= 0 {
		c.Coordinator.RunTTLHours = 72
	}
	if c.Coordinator.EventKey == "" {
		c.Coordinator.EventKey = "local"
	}

	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "uploads"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Database.Driver {
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	case DriverPgvector:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for driver \"pgvector\"")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be one of redis, valkey, pgvector, memory, got %q", c.Database.Driver)
	}

	if ov := c.Chunking.OverlapOrZero(); ov < 0 || ov >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, %d), got %d", c.Chunking.Size, ov)
	}
	switch c.Chunking.Strategy {
	case "sentence", "recursive":
	default:
		return fmt.Errorf("chunking.strategy must be \"sentence\" or \"recursive\", got %q", c.Chunking.Strategy)
	}

	if c.Index.MaxTopK > 20 {
		return fmt.Errorf("index.max_top_k must be at most 20, got %d", c.Index.MaxTopK)
	}

	switch c.Coordinator.RunStore {
	case "memory":
	case "database":
		if c.Database.Driver != DriverRedis && c.Database.Driver != DriverValkey {
			return fmt.Errorf("coordinator.run_store \"database\" requires a redis or valkey driver, got %q",
				c.Database.Driver)
		}
	default:
		return fmt.Errorf("coordinator.run_store must be \"memory\" or \"database\", got %q", c.Coordinator.RunStore)
	}

	if t := c.Generation.Temperature; t < 0 || t > 2 {
		return fmt.Errorf("generation.temperature must be between 0 and 2, got %v", t)
	}
	return nil
}

// RetryBase returns the coordinator's first retry delay.
func (c *CoordinatorConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMS) * time.Millisecond
}

// RetryMax returns the coordinator's retry delay cap.
func (c *CoordinatorConfig) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxSec) * time.Second
}

// RunTTL returns how long runs are kept in the database run store.
func (c *CoordinatorConfig) RunTTL() time.Duration {
	return time.Duration(c.RunTTLHours) * time.Hour
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
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
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
