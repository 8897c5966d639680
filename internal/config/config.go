// Package config holds the process configuration. It is built exactly once
// at startup and passed by reference to the engine, transport and storage
// factory; nothing in parlor reads the environment after Load returns.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every tunable the server needs.
type Config struct {
	// Addr is the listen address for the HTTP/WebSocket server, e.g. ":8080".
	Addr string

	// OfflineGrace is how long a fully-disconnected player keeps their seat
	// before the room is told they went offline.
	OfflineGrace time.Duration

	// JWTSecret signs handshake identity tokens. Empty disables token login;
	// clients must then present a raw identity in the login payload.
	JWTSecret string

	// StorageDriver selects the persistence backend: "memory", "postgres",
	// "mongo" or "redis".
	StorageDriver string

	PostgresURL string

	RedisAddr string
	RedisDB   int

	MongoURI      string
	MongoDatabase string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		Addr:          ":" + getEnv("PORT", "8080"),
		OfflineGrace:  getEnvDuration("OFFLINE_GRACE", 60*time.Second),
		JWTSecret:     os.Getenv("PARLOR_JWT_SECRET"),
		StorageDriver: getEnv("PARLOR_STORAGE", "memory"),
		PostgresURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "parlor"),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration parses an environment variable with time.ParseDuration,
// else returns the default.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
