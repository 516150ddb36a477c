package config

import (
	"errors"
	"os"
	"time"
)

type Config struct {
	ServerPort        string
	DatabaseURL       string
	RedisURL          string
	JWTSecret         string
	SessionTTL        time.Duration
	KeepAliveInterval time.Duration
}

func LoadConfig() (*Config, error) {
	sessionTTL, err := time.ParseDuration(getEnv("SESSION_TTL", "720h"))
	if err != nil {
		return nil, errors.New("invalid SESSION_TTL format")
	}

	keepAlive, err := time.ParseDuration(getEnv("KEEPALIVE_INTERVAL", "30s"))
	if err != nil {
		return nil, errors.New("invalid KEEPALIVE_INTERVAL format")
	}

	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		SessionTTL:        sessionTTL,
		KeepAliveInterval: keepAlive,
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
