// Package config loads the server configuration from environment
// variables and watches the structural limits file for runtime changes.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageDynamoDB = "dynamodb"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// Storage configuration
	StorageDriver    string
	AWSRegion        string
	DynamoDBTable    string
	DynamoDBEndpoint string // local development override

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Logging and features
	LogLevel      string
	EnableCORS    bool
	EnableMetrics bool

	// Structural limits, overridable at runtime via LimitsFile
	Limits     mindmap.Limits
	LimitsFile string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	defaults := mindmap.DefaultLimits()
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		StorageDriver:    getEnv("STORAGE_DRIVER", StorageMemory),
		AWSRegion:        getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable:    getEnv("DYNAMODB_TABLE", "mindmaps"),
		DynamoDBEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "mindmap-sync"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),

		Limits: mindmap.Limits{
			MaxLabelLength: getEnvInt("MAX_LABEL_LENGTH", defaults.MaxLabelLength),
			MaxCoordinate:  getEnvFloat("MAX_COORDINATE", defaults.MaxCoordinate),
			MaxNodesPerMap: getEnvInt("MAX_NODES_PER_MAP", defaults.MaxNodesPerMap),
			MaxEdgesPerMap: getEnvInt("MAX_EDGES_PER_MAP", defaults.MaxEdgesPerMap),
		},
		LimitsFile: getEnv("LIMITS_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory, StorageDynamoDB:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.StorageDriver == StorageDynamoDB && c.DynamoDBTable == "" {
		return fmt.Errorf("DYNAMODB_TABLE is required with the dynamodb driver")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if err := ValidateLimits(c.Limits); err != nil {
		return err
	}
	return nil
}

// ValidateLimits rejects limit sets the merge engine cannot operate under.
func ValidateLimits(l mindmap.Limits) error {
	if l.MaxLabelLength <= 0 {
		return fmt.Errorf("maxLabelLength must be positive")
	}
	if l.MaxCoordinate <= 0 {
		return fmt.Errorf("maxCoordinate must be positive")
	}
	if l.MaxNodesPerMap <= 0 {
		return fmt.Errorf("maxNodesPerMap must be positive")
	}
	if l.MaxEdgesPerMap <= 0 {
		return fmt.Errorf("maxEdgesPerMap must be positive")
	}
	return nil
}

// IsDevelopment checks if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
