// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/voltatlas/prognos/internal/exchange"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases, always absolute
	Port     int
	DevMode  bool
	LogLevel string

	// SendPredictionsEnabled false keeps the whole pipeline running but
	// short-circuits outbound deliveries as successful dry runs.
	SendPredictionsEnabled bool
	// InternalRecipient is the schedule management inbox.
	InternalRecipient string

	SMTP exchange.SMTPConfig
	S3   exchange.S3Config

	// Cron schedules (with seconds field). The partner forward must fire
	// after the internal gate closure at 11:45 Berlin.
	UpdatePredictSchedule  string
	PartnerForwardSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PROGNOS_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PROGNOS_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SendPredictionsEnabled: getEnvAsBool("SEND_PREDICTIONS_ENABLED", false),
		InternalRecipient:      getEnv("FAHRPLANMANAGEMENT_RECIPIENT", ""),

		SMTP: exchange.SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Email:    getEnv("SMTP_EMAIL", ""),
			Password: getEnv("SMTP_PASS", ""),
			Enabled:  getEnvAsBool("SEND_PREDICTIONS_ENABLED", false),
		},
		S3: exchange.S3Config{
			Region:          getEnv("EXCHANGE_S3_REGION", "eu-central-1"),
			Bucket:          getEnv("EXCHANGE_S3_BUCKET", ""),
			AccessKeyID:     getEnv("EXCHANGE_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("EXCHANGE_S3_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("EXCHANGE_S3_ENDPOINT", ""),
		},

		UpdatePredictSchedule:  getEnv("UPDATE_PREDICT_SCHEDULE", "0 0 8 * * *"),
		PartnerForwardSchedule: getEnv("PARTNER_FORWARD_SCHEDULE", "0 0 12 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.SendPredictionsEnabled && c.InternalRecipient == "" {
		return fmt.Errorf("FAHRPLANMANAGEMENT_RECIPIENT required when sending is enabled")
	}
	return nil
}

// Helper functions
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
