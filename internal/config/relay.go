package config

import (
	"os"
	"strconv"
	"strings"
)

// RelayConfig holds the relay server configuration.
type RelayConfig struct {
	Port           string
	Environment    string
	LogLevel       string
	AllowedOrigins []string
	JWTSecret      string
	Redis          RedisConfig
}

// RedisConfig points at an optional Redis server. An empty Addr keeps the
// relay fully in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// LoadRelay reads the relay configuration from the environment.
func LoadRelay() *RelayConfig {
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		db = 0
	}

	var origins []string
	for _, o := range strings.Split(getEnv("ALLOWED_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return &RelayConfig{
		Port:           getEnv("PORT", "8001"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       db,
		},
	}
}

// Addr is the listen address.
func (c *RelayConfig) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// firstNonEmpty implements flag > env > default.
func firstNonEmpty(flag, envKey, defaultValue string) string {
	if flag != "" {
		return flag
	}
	return getEnv(envKey, defaultValue)
}
