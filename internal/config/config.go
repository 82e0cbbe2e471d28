package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	PostgreSQL PostgreSQLConfig
	Redis      RedisConfig
	Server     ServerConfig
	OpenAI     OpenAIConfig
	Search     SearchConfig
	Rerank     RerankConfig
	Financing  FinancingConfig
	Twilio     TwilioConfig
	Logging    LoggingConfig
}

// PostgreSQLConfig holds PostgreSQL database configuration
type PostgreSQLConfig struct {
	DSN                string // full connection string, takes precedence
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
	MaxInFlight        int // concurrent vector-store operations
}

// RedisConfig holds the reply-cache configuration. An empty Addr disables
// the cache entirely.
type RedisConfig struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	TTLSecs   int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
}

// OpenAIConfig holds OpenAI-compatible API configuration
type OpenAIConfig struct {
	APIKey              string
	APIBase             string
	ChatModel           string
	ChatMaxTokens       int
	EmbeddingModel      string
	EmbeddingDimensions int
	BatchSize           int
	Timeout             int
	Enabled             bool
}

// SearchConfig holds retrieval defaults
type SearchConfig struct {
	CatalogTopK   int
	KnowledgeTopK int
	VocabScanSize int // page size for the catalog vocabulary scan
}

// RerankConfig holds the reranking bonus policy. Defaults match the tuned
// production values; change only with product guidance.
type RerankConfig struct {
	BrandBonus      float64
	ModelBonus      float64
	BudgetFitHigh   float64 // price/budget in [0.70, 0.95]
	BudgetFitClose  float64 // price/budget in (0.95, 1.0]
	BudgetFitLow    float64 // price/budget below 0.70
	RecencyWeight   float64
	MileageWeight   float64
	MileageCeiling  float64 // km at which the low-mileage bonus bottoms out
	RecencyBaseYear int
	RecencySpan     float64
}

// FinancingConfig holds financing defaults
type FinancingConfig struct {
	AnnualRate float64
	MinYears   int
	MaxYears   int
}

// TwilioConfig holds the WhatsApp messaging transport configuration
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string // e.g. "whatsapp:+14155238886"
	Enabled    bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := &Config{
		PostgreSQL: PostgreSQLConfig{
			DSN:                getEnv("DATABASE_URL", getEnv("PG_DSN", "")),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "autoasesor"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 5),
			MaxInFlight:        getEnvAsInt("PG_VECTOR_MAX_IN_FLIGHT", 10),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Username:  getEnv("REDIS_USERNAME", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "autoasesor"),
			TTLSecs:   getEnvAsInt("REDIS_TTL_SECONDS", 3600),
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		OpenAI: OpenAIConfig{
			APIKey:              getEnv("OPENAI_API_KEY", ""),
			APIBase:             getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
			ChatModel:           getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			ChatMaxTokens:       getEnvAsInt("OPENAI_CHAT_MAX_TOKENS", 1500),
			EmbeddingModel:      getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimensions: getEnvAsInt("OPENAI_EMBEDDING_DIMENSIONS", 1536),
			BatchSize:           getEnvAsInt("OPENAI_BATCH_SIZE", 100),
			Timeout:             getEnvAsInt("OPENAI_TIMEOUT", 30),
			Enabled:             getEnv("OPENAI_API_KEY", "") != "",
		},
		Search: SearchConfig{
			CatalogTopK:   getEnvAsInt("SEARCH_CATALOG_TOP_K", 5),
			KnowledgeTopK: getEnvAsInt("SEARCH_KNOWLEDGE_TOP_K", 3),
			VocabScanSize: getEnvAsInt("SEARCH_VOCAB_SCAN_SIZE", 1000),
		},
		Rerank: RerankConfig{
			BrandBonus:      getEnvAsFloat("RERANK_BRAND_BONUS", 0.2),
			ModelBonus:      getEnvAsFloat("RERANK_MODEL_BONUS", 0.2),
			BudgetFitHigh:   getEnvAsFloat("RERANK_BUDGET_FIT_HIGH", 0.15),
			BudgetFitClose:  getEnvAsFloat("RERANK_BUDGET_FIT_CLOSE", 0.10),
			BudgetFitLow:    getEnvAsFloat("RERANK_BUDGET_FIT_LOW", 0.05),
			RecencyWeight:   getEnvAsFloat("RERANK_RECENCY_WEIGHT", 0.1),
			MileageWeight:   getEnvAsFloat("RERANK_MILEAGE_WEIGHT", 0.1),
			MileageCeiling:  getEnvAsFloat("RERANK_MILEAGE_CEILING", 200000),
			RecencyBaseYear: getEnvAsInt("RERANK_RECENCY_BASE_YEAR", 2000),
			RecencySpan:     getEnvAsFloat("RERANK_RECENCY_SPAN", 24),
		},
		Financing: FinancingConfig{
			AnnualRate: getEnvAsFloat("FINANCING_ANNUAL_RATE", 0.10),
			MinYears:   getEnvAsInt("FINANCING_MIN_YEARS", 3),
			MaxYears:   getEnvAsInt("FINANCING_MAX_YEARS", 6),
		},
		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
			Enabled:    getEnv("TWILIO_ACCOUNT_SID", "") != "" && getEnv("TWILIO_AUTH_TOKEN", "") != "",
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// GetPostgreSQLDSN returns the PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default %f", key, defaultValue)
		return defaultValue
	}
	return value
}
