// Package config holds environment loading shared by the binaries.
// Flags take their defaults from the environment; the .env file never
// overrides variables already set.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names for external credentials. An absent
// credential disables exactly the component that needs it.
const (
	EnvBrowserCashKey = "BROWSER_CASH_API_KEY"
	EnvAgentKey       = "AGENT_CASH_API_KEY"
	EnvMoralisKey     = "MORALIS_API_KEY"
	EnvPostgresDSN    = "POSTGRES_DSN"
	EnvClickHouseDSN  = "CLICKHOUSE_DSN"
)

// Default store file names, relative to the data directory.
const (
	PostsFile     = "scraped_posts.json"
	SentimentFile = "sentiment.json"
	CoinsFile     = "coin-data.json"
)

// LoadEnvFile loads environment variables from a .env file if it exists.
func LoadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// EnvOr returns the variable's value or a fallback.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvIntOr returns the variable parsed as an int, or a fallback.
func EnvIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// EnvDurationOr returns the variable parsed as a duration, or a fallback.
func EnvDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
