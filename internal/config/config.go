package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the application
type Config struct {
	PostgreSQL PostgreSQLConfig
	Server     ServerConfig
	Search     SearchConfig
	Agent      AgentConfig
	OpenAI     OpenAIConfig
	Embedding  EmbeddingConfig
	Logging    LoggingConfig
}

// PostgreSQLConfig holds PostgreSQL database configuration
type PostgreSQLConfig struct {
	DSN                string // full connection string, takes precedence when set
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
}

// SearchConfig holds search engine configuration
type SearchConfig struct {
	ResultCap int // hard per-invocation row cap, enforced at the store query
}

// AgentConfig holds agent turn loop configuration
type AgentConfig struct {
	MaxIterations int // guard against runaway capability-invocation loops
	SummaryTopK   int // listings surfaced to the model per search invocation
}

// OpenAIConfig holds completion service configuration
type OpenAIConfig struct {
	APIKey      string
	APIBase     string
	ChatModel   string
	Temperature float64
	MaxTokens   int
	Timeout     int
	Enabled     bool
}

// EmbeddingConfig holds embedding service configuration.
// Query and passage prefixes follow asymmetric-encoder conventions
// (e5-style models produce different vectors for queries vs documents).
type EmbeddingConfig struct {
	Model         string
	Dimensions    int
	QueryPrefix   string
	PassagePrefix string
	BatchSize     int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
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
			Database:           getEnv("PG_DATABASE", "rentals"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 5),
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Search: SearchConfig{
			ResultCap: getEnvAsInt("SEARCH_RESULT_CAP", 50),
		},
		Agent: AgentConfig{
			MaxIterations: getEnvAsInt("AGENT_MAX_ITERATIONS", 8),
			SummaryTopK:   getEnvAsInt("AGENT_SUMMARY_TOP_K", 10),
		},
		OpenAI: OpenAIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			APIBase:     getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
			ChatModel:   getEnv("OPENAI_CHAT_MODEL", "gpt-4o"),
			Temperature: getEnvAsFloat("OPENAI_CHAT_TEMPERATURE", 0.2),
			MaxTokens:   getEnvAsInt("OPENAI_CHAT_MAX_TOKENS", 4096),
			Timeout:     getEnvAsInt("OPENAI_TIMEOUT", 60),
			Enabled:     getEnv("OPENAI_API_KEY", "") != "",
		},
		Embedding: EmbeddingConfig{
			Model:         getEnv("OPENAI_EMBEDDING_MODEL", "intfloat/e5-large-v2"),
			Dimensions:    getEnvAsInt("OPENAI_EMBEDDING_DIMENSIONS", 1024),
			QueryPrefix:   getEnv("EMBEDDING_QUERY_PREFIX", "query: "),
			PassagePrefix: getEnv("EMBEDDING_PASSAGE_PREFIX", "passage: "),
			BatchSize:     getEnvAsInt("OPENAI_EMBEDDING_BATCH_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
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
		log.Warn().Str("key", key).Int("default", defaultValue).Msg("invalid integer value, using default")
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
		log.Warn().Str("key", key).Float64("default", defaultValue).Msg("invalid float value, using default")
		return defaultValue
	}
	return value
}
