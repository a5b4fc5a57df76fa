package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	QA        QAConfig        `yaml:"qa"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Security  SecurityConfig  `yaml:"security"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LedgerConfig struct {
	CSVFile   string        `yaml:"csv_file"`
	Delimiter string        `yaml:"delimiter"`
	Currency  string        `yaml:"currency"`
	Watch     bool          `yaml:"watch"`
	Debounce  time.Duration `yaml:"debounce"`
}

// Comma returns the field delimiter as a rune.
func (c LedgerConfig) Comma() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

type OllamaConfig struct {
	BaseURL          string        `yaml:"base_url"`
	ChatModel        string        `yaml:"chat_model"`
	EmbeddingModel   string        `yaml:"embedding_model"`
	Temperature      float64       `yaml:"temperature"`
	EmbedConcurrency int           `yaml:"embed_concurrency"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

type RetrievalConfig struct {
	TopK    int    `yaml:"top_k"`
	Store   string `yaml:"store"` // memory or sqlite
	DataDir string `yaml:"data_dir"`
}

type QAConfig struct {
	AskTimeout   time.Duration `yaml:"ask_timeout"`
	HistoryLimit int           `yaml:"history_limit"` // 0 keeps every turn
	SessionTTL   time.Duration `yaml:"session_ttl"`
	MaxSessions  int           `yaml:"max_sessions"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type SecurityConfig struct {
	EnableRateLimit bool `yaml:"enable_rate_limit"`
	RateLimitRPS    int  `yaml:"rate_limit_rps"`
	RateLimitBurst  int  `yaml:"rate_limit_burst"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    150 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Ledger: LedgerConfig{
			CSVFile:   "data/sample_data.csv",
			Delimiter: ",",
			Currency:  "₹",
			Watch:     true,
			Debounce:  500 * time.Millisecond,
		},
		Ollama: OllamaConfig{
			BaseURL:          "http://127.0.0.1:11434",
			ChatModel:        "mistral",
			EmbeddingModel:   "all-minilm",
			Temperature:      0.7,
			EmbedConcurrency: 4,
			RequestTimeout:   300 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:    3,
			Store:   "memory",
			DataDir: "./data",
		},
		QA: QAConfig{
			AskTimeout:  120 * time.Second,
			SessionTTL:  30 * time.Minute,
			MaxSessions: 1000,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "ledgerrag",
		},
		Security: SecurityConfig{
			EnableRateLimit: true,
			RateLimitRPS:    10,
			RateLimitBurst:  20,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file at path
// and the environment, in increasing precedence. A local .env file seeds the
// environment when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvString("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Ledger.CSVFile = getEnvString("LEDGER_CSV_FILE", c.Ledger.CSVFile)
	c.Ledger.Delimiter = getEnvString("LEDGER_DELIMITER", c.Ledger.Delimiter)
	c.Ledger.Currency = getEnvString("LEDGER_CURRENCY", c.Ledger.Currency)
	c.Ledger.Watch = getEnvBool("LEDGER_WATCH", c.Ledger.Watch)
	c.Ledger.Debounce = getEnvDuration("LEDGER_DEBOUNCE", c.Ledger.Debounce)

	c.Ollama.BaseURL = getEnvString("OLLAMA_BASE_URL", c.Ollama.BaseURL)
	c.Ollama.ChatModel = getEnvString("OLLAMA_CHAT_MODEL", c.Ollama.ChatModel)
	c.Ollama.EmbeddingModel = getEnvString("OLLAMA_EMBEDDING_MODEL", c.Ollama.EmbeddingModel)
	c.Ollama.Temperature = getEnvFloat("OLLAMA_TEMPERATURE", c.Ollama.Temperature)
	c.Ollama.EmbedConcurrency = getEnvInt("OLLAMA_EMBED_CONCURRENCY", c.Ollama.EmbedConcurrency)
	c.Ollama.RequestTimeout = getEnvDuration("OLLAMA_REQUEST_TIMEOUT", c.Ollama.RequestTimeout)

	c.Retrieval.TopK = getEnvInt("RETRIEVAL_TOP_K", c.Retrieval.TopK)
	c.Retrieval.Store = getEnvString("RETRIEVAL_STORE", c.Retrieval.Store)
	c.Retrieval.DataDir = getEnvString("RETRIEVAL_DATA_DIR", c.Retrieval.DataDir)

	c.QA.AskTimeout = getEnvDuration("QA_ASK_TIMEOUT", c.QA.AskTimeout)
	c.QA.HistoryLimit = getEnvInt("QA_HISTORY_LIMIT", c.QA.HistoryLimit)
	c.QA.SessionTTL = getEnvDuration("QA_SESSION_TTL", c.QA.SessionTTL)
	c.QA.MaxSessions = getEnvInt("QA_MAX_SESSIONS", c.QA.MaxSessions)

	c.Logger.Level = getEnvString("LOG_LEVEL", c.Logger.Level)
	c.Logger.Format = getEnvString("LOG_FORMAT", c.Logger.Format)

	c.Tracing.Enabled = getEnvBool("TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.ServiceName = getEnvString("TRACING_SERVICE_NAME", c.Tracing.ServiceName)

	c.Security.EnableRateLimit = getEnvBool("SECURITY_RATE_LIMIT_ENABLED", c.Security.EnableRateLimit)
	c.Security.RateLimitRPS = getEnvInt("SECURITY_RATE_LIMIT_RPS", c.Security.RateLimitRPS)
	c.Security.RateLimitBurst = getEnvInt("SECURITY_RATE_LIMIT_BURST", c.Security.RateLimitBurst)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Ledger.CSVFile == "" {
		return fmt.Errorf("ledger CSV file path cannot be empty")
	}

	if utf8.RuneCountInString(c.Ledger.Delimiter) != 1 || strings.ContainsAny(c.Ledger.Delimiter, "\"\r\n") {
		return fmt.Errorf("ledger delimiter must be a single character other than a quote or newline, got %q", c.Ledger.Delimiter)
	}

	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("ollama base URL cannot be empty")
	}

	if c.Ollama.Temperature < 0 {
		return fmt.Errorf("ollama temperature must not be negative")
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive, got %d", c.Retrieval.TopK)
	}

	validStores := []string{"memory", "sqlite"}
	if !contains(validStores, c.Retrieval.Store) {
		return fmt.Errorf("invalid vector store %q, must be one of: %s", c.Retrieval.Store, strings.Join(validStores, ", "))
	}

	if c.QA.AskTimeout <= 0 {
		return fmt.Errorf("QA ask timeout must be positive")
	}

	if c.QA.HistoryLimit < 0 {
		return fmt.Errorf("QA history limit must not be negative")
	}

	if c.QA.SessionTTL <= 0 || c.QA.MaxSessions <= 0 {
		return fmt.Errorf("QA session TTL and max sessions must be positive")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.EnableRateLimit {
		if c.Security.RateLimitRPS <= 0 {
			return fmt.Errorf("rate limit RPS must be positive")
		}
		if c.Security.RateLimitBurst <= 0 {
			return fmt.Errorf("rate limit burst must be positive")
		}
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
