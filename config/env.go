package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvOwner        = "ARB_OWNER"
	EnvHTTPAddr     = "ARB_HTTP_ADDR"
	EnvPostgresDSN  = "ARB_POSTGRES_DSN"
	EnvProfitPolicy = "ARB_PROFIT_POLICY"
	EnvLogFile      = "ARB_LOG_FILE"
)

// LoadEnv loads environment variables from .env files; existing variables win
func LoadEnv(files ...string) error {
	return godotenv.Load(files...)
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// ApplyEnv overrides file settings with any variables that are set
func (c *Config) ApplyEnv() {
	c.Owner = GetEnvWithDefault(EnvOwner, c.Owner)
	c.HTTPAddr = GetEnvWithDefault(EnvHTTPAddr, c.HTTPAddr)
	c.PostgresDSN = GetEnvWithDefault(EnvPostgresDSN, c.PostgresDSN)
	c.ProfitPolicy = GetEnvWithDefault(EnvProfitPolicy, c.ProfitPolicy)
	c.LogFile = GetEnvWithDefault(EnvLogFile, c.LogFile)
}
