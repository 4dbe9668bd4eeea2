package common

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Batch    BatchConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" or "sqlite"
	DSN              string
	MaxConns         int
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract   string
	TessdataDir string
	Language    string
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// BatchConfig holds orchestration configuration
type BatchConfig struct {
	Workers      int
	FetchTimeout time.Duration
	ItemTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt("DB_MAX_CONNS", 20),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		},
		OCR: OCRConfig{
			Tesseract:   getEnv("TESSERACT_BIN", "tesseract"),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			Language:    getEnv("OCR_LANG", "eng"),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Model:       getEnv("LLM_MODEL", "gemini-2.5-flash"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Temperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
		},
		Batch: BatchConfig{
			Workers:      getEnvAsInt("BATCH_WORKERS", 10),
			FetchTimeout: getEnvAsDuration("FETCH_TIMEOUT", 20*time.Second),
			ItemTimeout:  getEnvAsDuration("ITEM_TIMEOUT", 3*time.Minute),
		},
	}
}

// LoadConfigFile layers an optional config.yaml over the env-derived config.
// Keys set in config.yaml override the env-derived values; keys absent from
// the file keep env vars and defaults.
func LoadConfigFile(configPath string) *Config {
	cfg := LoadConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	if err := v.ReadInConfig(); err != nil {
		// no config.yaml is fine; env + defaults apply
		return cfg
	}

	if v.IsSet("database.driver") {
		cfg.Database.Driver = v.GetString("database.driver")
	}
	if v.IsSet("database.dsn") {
		cfg.Database.DSN = v.GetString("database.dsn")
	}
	if v.IsSet("server.http_addr") {
		cfg.Server.HTTPAddr = v.GetString("server.http_addr")
	}
	if v.IsSet("llm.base_url") {
		cfg.LLM.BaseURL = v.GetString("llm.base_url")
	}
	if v.IsSet("llm.model") {
		cfg.LLM.Model = v.GetString("llm.model")
	}
	if v.IsSet("llm.api_key") {
		cfg.LLM.APIKey = v.GetString("llm.api_key")
	}
	if v.IsSet("batch.workers") {
		cfg.Batch.Workers = v.GetInt("batch.workers")
	}
	return cfg
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "LLM_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Batch.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "BATCH_WORKERS must be positive", ErrInvalidInput)
	}
	return nil
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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
