// Package config provides configuration for the playground services.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the playground configuration.
type Config struct {
	// Real-time server settings
	ServerURL     string
	TokenEndpoint string

	// Pages server settings
	HTTPPort      int
	StaticDir     string
	TokenUpstream string

	// Session settings
	ConnectTimeout time.Duration
	TokenTimeout   time.Duration
	TypingDelay    time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		ServerURL:      getEnv("LIVEKIT_URL", "ws://localhost:7880"),
		TokenEndpoint:  getEnv("TOKEN_ENDPOINT", "http://localhost:8000/api/token"),
		HTTPPort:       getEnvInt("HTTP_PORT", 3000),
		StaticDir:      getEnv("STATIC_DIR", "public"),
		TokenUpstream:  getEnv("TOKEN_UPSTREAM", "http://localhost:8000"),
		ConnectTimeout: time.Duration(getEnvInt("CONNECT_TIMEOUT_MS", 15000)) * time.Millisecond,
		TokenTimeout:   time.Duration(getEnvInt("TOKEN_TIMEOUT_MS", 10000)) * time.Millisecond,
		TypingDelay:    time.Duration(getEnvInt("TYPING_DELAY_MS", 1500)) * time.Millisecond,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
