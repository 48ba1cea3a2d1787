package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Storage
	DataDir      string // Per-user knowledge graph JSON files live here
	DatabasePath string // SQLite database for conversations, personas, documents

	// Vector engine (Chroma-compatible REST API)
	ChromaHost string

	// LLM backend (OpenAI-compatible)
	LLMURL    string
	LLMAPIKey string
	ModelID   string

	// Document chunking
	ChunkSize    int
	ChunkOverlap int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", "development"),
		DataDir:      getEnv("DATA_DIR", "data"),
		DatabasePath: getEnv("DATABASE_PATH", "data/gantry.db"),
		ChromaHost:   getEnv("CHROMA_HOST", "http://localhost:8000"),
		LLMURL:       getEnv("LLM_URL", "http://localhost:5000"),
		LLMAPIKey:    getEnv("LLM_API_KEY", ""),
		ModelID:      getEnv("MODEL_ID", "default"),
		ChunkSize:    getEnvInt("CHUNK_SIZE", 2000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 100),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.ChromaHost == "" {
		return fmt.Errorf("CHROMA_HOST is required")
	}
	if c.LLMURL == "" {
		return fmt.Errorf("LLM_URL is required")
	}
	if c.ModelID == "" {
		return fmt.Errorf("MODEL_ID is required")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	// LLM API key is optional for local backends
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
