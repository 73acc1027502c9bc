package config

import (
	"os"
)

type Config struct {
	DatabasePath  string
	ServerAddress string
	JWTSecret     string
	StatementsDir string
}

func Load() *Config {
	return &Config{
		DatabasePath:  getEnv("DATABASE_PATH", "./nk-billing.db"),
		ServerAddress: getEnv("SERVER_ADDRESS", ":8081"),
		JWTSecret:     getEnv("JWT_SECRET", "nk-billing-secret-change-in-production"),
		StatementsDir: getEnv("STATEMENTS_DIR", "./statements"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
