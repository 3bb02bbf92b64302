package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string
	TokenTTL    time.Duration
	UploadDir   string
	StatusFile  string
	Migrate     bool
}

func Load() Config {
	addr := envOrDefault("PORT", "8080")
	ttlHours := envOrDefault("TOKEN_TTL_HOURS", "24")
	ttlParsed, err := strconv.Atoi(ttlHours)
	if err != nil || ttlParsed <= 0 {
		ttlParsed = 24
	}
	return Config{
		Addr:        ":" + addr,
		// An unset DATABASE_URL selects the in-memory store.
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		TokenTTL:    time.Duration(ttlParsed) * time.Hour,
		UploadDir:   envOrDefault("UPLOAD_DIR", "uploads"),
		StatusFile:  envOrDefault("STATUS_FILE", "user_status.json"),
		Migrate:     os.Getenv("MIGRATE") == "1",
	}
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
