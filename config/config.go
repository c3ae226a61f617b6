package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the environment-driven configuration of the realtime
// server. Defaults mirror the platform's development settings.
type Config struct {
	Port                  string
	RedisURL              string
	JWTSecret             string
	JWTIssuer             string
	JWTAudience           string
	MaxConnectionsPerUser int
	HeartbeatInterval     time.Duration
	LogLevel              string
}

func Load() Config {
	return Config{
		Port:                  getenv("PORT", "8080"),
		RedisURL:              getenv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:             getenv("JWT_SECRET", "changeme"),
		JWTIssuer:             getenv("JWT_ISSUER", "project_manager"),
		JWTAudience:           getenv("JWT_AUDIENCE", "project_manager_users"),
		MaxConnectionsPerUser: getint("WS_MAX_CONNECTIONS_PER_USER", 5),
		HeartbeatInterval:     getduration("WS_HEARTBEAT_INTERVAL", 30*time.Second),
		LogLevel:              getenv("LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
