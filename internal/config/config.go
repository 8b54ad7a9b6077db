// Package config loads engine configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all tunables for the battle engine. Storage selection is
// driven by which URLs are present: DATABASE_URL enables Postgres,
// REDIS_URL additionally enables the read-through cache, neither falls
// back to the in-memory store.
type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string

	MinWager decimal.Decimal // floor for battle creation
	FeeRate  decimal.Decimal // fraction of the pot kept at settlement
	CacheTTL time.Duration

	// Stake limits; zero disables the check.
	MaxOpenBattles int
	MaxStakeAtRisk decimal.Decimal
}

// Load reads configuration from environment variables, applying defaults
// for everything but the storage URLs.
func Load() Config {
	addr := strings.TrimSpace(os.Getenv("PORT"))
	if addr == "" {
		addr = "8080"
	}
	if !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}

	return Config{
		Addr:           addr,
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		MinWager:       envDecimalDefault("ARENA_MIN_WAGER", "0.01"),
		FeeRate:        envDecimalDefault("ARENA_FEE_RATE", "0.03"),
		CacheTTL:       envDurationDefault("ARENA_CACHE_TTL", 30*time.Second),
		MaxOpenBattles: envIntDefault("ARENA_MAX_OPEN_BATTLES", 0),
		MaxStakeAtRisk: envDecimalDefault("ARENA_MAX_STAKE_AT_RISK", "0"),
	}
}

func envDecimalDefault(key, fallback string) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
