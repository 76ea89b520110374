package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	EnableWebsocket bool

	APIKeyRequired bool
	APIKeys        []string

	DBDriver string
	DBPath   string
	DBDSN    string

	JWTSecret     string
	EncryptionKey string

	ExpirySweepMinutes  int
	RecordRetentionDays int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: no .env file found")
	}

	config := &Config{
		Port: getEnv("PORT", "8080"),

		EnableWebsocket: getBoolEnv("ENABLE_WEBSOCKET", true),

		APIKeyRequired: getBoolEnv("API_KEY_REQUIRED", false),
		APIKeys:        getStringSliceEnv("API_KEYS", []string{}),

		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBPath:   getEnv("DB_PATH", "passgate.db"),
		DBDSN:    getEnv("DB_DSN", ""),

		JWTSecret:     getEnv("JWT_SECRET", "default-passgate-jwt-secret-change-me"),
		EncryptionKey: getEnv("ENCRYPTION_KEY", "12345678901234567890123456789012"),

		ExpirySweepMinutes:  getIntEnv("EXPIRY_SWEEP_MINUTES", 5),
		RecordRetentionDays: getIntEnv("RECORD_RETENTION_DAYS", 0),
	}

	return config
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getBoolEnv(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return boolValue
}

func getIntEnv(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return intValue
}

func getStringSliceEnv(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	return strings.Split(value, ",")
}
