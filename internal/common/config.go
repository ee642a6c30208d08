package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Storage     StorageConfig
	Server      ServerConfig
	OCR         OCRConfig
	LLM         LLMConfig
	Extraction  ExtractionConfig
	Worker      WorkerConfig
	Maintenance MaintenanceConfig
	Inbox       InboxConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// RedisConfig holds the durable queue connection. Empty Addr selects the in-memory broker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// KafkaConfig holds event publishing configuration. No brokers means events are only logged.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// StorageConfig holds document download configuration
type StorageConfig struct {
	AzureConnectionString string
	AzureContainer        string
	HTTPTimeout           time.Duration
	MaxDownloadMB         int
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// OCRConfig holds local PDF tooling configuration
type OCRConfig struct {
	Pdftotext string
	Pdftoppm  string
	DPI       int
	MaxPages  int
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// ExtractionConfig holds the text budget for the extraction adapter
type ExtractionConfig struct {
	MaxTextChars int
	MinTextChars int
}

// WorkerConfig holds job pool sizing and retry policy
type WorkerConfig struct {
	Concurrency    int
	RatePerSec     float64
	MaxAttempts    int
	Backoff        time.Duration
	ProcessTimeout time.Duration
}

// MaintenanceConfig holds the recurring sweep settings
type MaintenanceConfig struct {
	SweepInterval time.Duration
	StaleAfter    time.Duration
}

// InboxConfig holds the watched drop folder and the owner of documents found there
type InboxConfig struct {
	Dir       string
	FamilyID  string
	PatientID string
	UserID    string
	Debounce  time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("SQLITE_PATH", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "careplan"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "document-pipeline-events"),
		},
		Storage: StorageConfig{
			AzureConnectionString: getEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
			AzureContainer:        getEnv("AZURE_STORAGE_CONTAINER", "documents"),
			HTTPTimeout:           getEnvAsDuration("DOWNLOAD_TIMEOUT", 30*time.Second),
			MaxDownloadMB:         getEnvAsInt("DOWNLOAD_MAX_MB", 25),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		OCR: OCRConfig{
			Pdftotext: getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:  getEnv("PDFTOPPM_BIN", "pdftoppm"),
			DPI:       getEnvAsInt("PDF_RENDER_DPI", 150),
			MaxPages:  getEnvAsInt("PDF_MAX_PAGES", 10),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 120*time.Second),
		},
		Extraction: ExtractionConfig{
			MaxTextChars: getEnvAsInt("EXTRACT_MAX_TEXT_CHARS", 100_000),
			MinTextChars: getEnvAsInt("EXTRACT_MIN_TEXT_CHARS", 100),
		},
		Worker: WorkerConfig{
			Concurrency:    getEnvAsInt("WORKER_CONCURRENCY", 3),
			RatePerSec:     getEnvAsFloat64("WORKER_RATE_PER_SEC", 5),
			MaxAttempts:    getEnvAsInt("WORKER_MAX_ATTEMPTS", 2),
			Backoff:        getEnvAsDuration("WORKER_BACKOFF", 2*time.Second),
			ProcessTimeout: getEnvAsDuration("WORKER_PROCESS_TIMEOUT", 5*time.Minute),
		},
		Maintenance: MaintenanceConfig{
			SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", 15*time.Minute),
			StaleAfter:    getEnvAsDuration("STALE_AFTER", 30*time.Minute),
		},
		Inbox: InboxConfig{
			Dir:       getEnv("INBOX_DIR", ""),
			FamilyID:  getEnv("INBOX_FAMILY_ID", ""),
			PatientID: getEnv("INBOX_PATIENT_ID", ""),
			UserID:    getEnv("INBOX_USER_ID", "inbox"),
			Debounce:  getEnvAsDuration("INBOX_DEBOUNCE", 500*time.Millisecond),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration for the worker daemon.
func (c *Config) Validate() error {
	if c.Database.DSN == "" && c.Database.SQLitePath == "" {
		return NewAppError(KindConfig, "DB_URL or SQLITE_PATH is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError(KindConfig, "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Worker.Concurrency <= 0 {
		return NewAppError(KindConfig, "WORKER_CONCURRENCY must be positive", ErrInvalidInput)
	}
	if c.Worker.MaxAttempts <= 0 {
		return NewAppError(KindConfig, "WORKER_MAX_ATTEMPTS must be positive", ErrInvalidInput)
	}
	if c.Extraction.MaxTextChars <= 0 {
		return NewAppError(KindConfig, "EXTRACT_MAX_TEXT_CHARS must be positive", ErrInvalidInput)
	}
	return nil
}
