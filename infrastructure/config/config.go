package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion     string
	DynamoDBTable string
	IndexName     string // GSI1 - for space-level queries
	EventBusName  string

	// Storage backend: "dynamodb" or "memory"
	StorageBackend string

	// Authentication
	JWTSecret     string
	JWTIssuer     string
	TokenTTL      time.Duration
	RequireInvite bool

	// Logging
	LogLevel string

	// Feature flags
	EnableMetrics bool
	EnableEvents  bool
	EnableCORS    bool
}

// LoadConfig loads configuration from the environment, reading a local .env
// file first when present.
func LoadConfig() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("TABLE_NAME", "heirloom"),
		IndexName:     getEnv("INDEX_NAME", "SpaceIndex"),
		EventBusName:  getEnv("EVENT_BUS_NAME", "heirloom-events"),

		StorageBackend: getEnv("STORAGE_BACKEND", "dynamodb"),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", "heirloom-api"),
		TokenTTL:      getEnvDuration("TOKEN_TTL", 24*time.Hour),
		RequireInvite: getEnvBool("REQUIRE_INVITE", true),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableEvents:  getEnvBool("ENABLE_EVENTS", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.StorageBackend != "dynamodb" && c.StorageBackend != "memory" {
		return fmt.Errorf("STORAGE_BACKEND must be dynamodb or memory, got %q", c.StorageBackend)
	}
	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.StorageBackend == "dynamodb" && c.DynamoDBTable == "" {
			return fmt.Errorf("TABLE_NAME is required")
		}
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
