package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// HTTP API configuration
	APIPort int

	// External provider configuration
	MarketData MarketDataConfig
	News       NewsConfig
	Disclosure DisclosureConfig

	// LLM configuration
	LLM LLMConfig

	// Pipeline configuration
	Collector CollectorConfig
	Pipeline  PipelineConfig
}

// MarketDataConfig holds the market data provider configuration
type MarketDataConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// NewsConfig holds the news provider configuration
type NewsConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// DisclosureConfig holds the corporate disclosure provider configuration
type DisclosureConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// LLMConfig holds reasoning service configuration
type LLMConfig struct {
	Enabled        bool
	Endpoint       string
	APIKey         string
	Model          string
	TimeoutSeconds int
	MaxAttempts    int
}

// CollectorConfig holds price snapshot collection parameters
type CollectorConfig struct {
	// Schedule is a cron spec, e.g. "@every 20m"
	Schedule        string
	Workers         int
	MarketHoursOnly bool
}

// PipelineConfig holds report generation parameters
type PipelineConfig struct {
	PollIntervalSeconds  int
	StageTimeoutSeconds  int
	ReportTimeoutSeconds int
	StageAttempts        int
	RetryBackoffMS       int
	MaxConcurrentReports int
	ContextWindowHours   int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "ohmystock"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "ohmystock"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "ohmystock123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		APIPort: getEnvInt("API_PORT", 8080),

		MarketData: MarketDataConfig{
			BaseURL:        getEnvOrDefault("MARKET_DATA_URL", "https://api.krx-quotes.example.com/v1"),
			APIKey:         os.Getenv("MARKET_DATA_API_KEY"),
			TimeoutSeconds: getEnvInt("MARKET_DATA_TIMEOUT", 10),
		},
		News: NewsConfig{
			BaseURL:        getEnvOrDefault("NEWS_API_URL", "https://api.news.example.com/v1"),
			APIKey:         os.Getenv("NEWS_API_KEY"),
			TimeoutSeconds: getEnvInt("NEWS_TIMEOUT", 10),
		},
		Disclosure: DisclosureConfig{
			BaseURL:        getEnvOrDefault("DART_API_URL", "https://opendart.example.com/api"),
			APIKey:         os.Getenv("DART_API_KEY"),
			TimeoutSeconds: getEnvInt("DART_TIMEOUT", 10),
		},

		LLM: LLMConfig{
			Enabled:        getEnvOrDefault("LLM_ENABLED", "true") == "true",
			Endpoint:       getEnvOrDefault("LLM_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:         os.Getenv("LLM_API_KEY"),
			Model:          getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			TimeoutSeconds: getEnvInt("LLM_TIMEOUT", 60),
			MaxAttempts:    getEnvInt("LLM_MAX_ATTEMPTS", 2),
		},

		Collector: CollectorConfig{
			Schedule:        getEnvOrDefault("COLLECTOR_SCHEDULE", "@every 20m"),
			Workers:         getEnvInt("COLLECTOR_WORKERS", 5),
			MarketHoursOnly: getEnvOrDefault("COLLECTOR_MARKET_HOURS_ONLY", "true") == "true",
		},
		Pipeline: PipelineConfig{
			PollIntervalSeconds:  getEnvInt("PIPELINE_POLL_INTERVAL", 30),
			StageTimeoutSeconds:  getEnvInt("PIPELINE_STAGE_TIMEOUT", 30),
			ReportTimeoutSeconds: getEnvInt("PIPELINE_REPORT_TIMEOUT", 180),
			StageAttempts:        getEnvInt("PIPELINE_STAGE_ATTEMPTS", 2),
			RetryBackoffMS:       getEnvInt("PIPELINE_RETRY_BACKOFF_MS", 500),
			MaxConcurrentReports: getEnvInt("PIPELINE_MAX_CONCURRENT", 4),
			ContextWindowHours:   getEnvInt("PIPELINE_CONTEXT_WINDOW_HOURS", 48),
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
