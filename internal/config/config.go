package config

import (
	"fmt"
	"os"
	"time"
)

const (
	// Call state machine
	RingingTimeout    = 30 * time.Second
	ConnectingTimeout = 10 * time.Second
	// GraceDelay keeps a terminated session in the live set briefly so a
	// straggling relay event still finds it.
	GraceDelay       = 3 * time.Second
	MaxCallAge       = 24 * time.Hour
	HistoryRetention = 24 * time.Hour
	HistoryRingSize  = 1000
	SweepInterval    = time.Hour

	// Typing
	TypingTTL           = 6 * time.Second
	TypingSweepInterval = 2 * time.Second
)

// Rate-limit action kinds.
const (
	ActionMessageSend        = "message_send"
	ActionConversationCreate = "conversation_create"
	ActionSearch             = "search"
	ActionCallOffer          = "call_offer"
)

// RatePolicy bounds one action kind to Limit actions per Window.
type RatePolicy struct {
	Limit  int
	Window time.Duration
}

// DefaultRatePolicies returns the stock per-action limits. The numbers are
// policy, not structure; callers may override per kind.
func DefaultRatePolicies() map[string]RatePolicy {
	return map[string]RatePolicy{
		ActionMessageSend:        {Limit: 30, Window: time.Minute},
		ActionConversationCreate: {Limit: 10, Window: 5 * time.Minute},
		ActionSearch:             {Limit: 20, Window: time.Minute},
		ActionCallOffer:          {Limit: 10, Window: time.Minute},
	}
}

// Config carries the environment-driven wiring values.
type Config struct {
	Port      string
	JWTSecret string
	RedisAddr string
	RedisPass string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
}

// Load reads the configuration from environment variables, falling back to
// local-development defaults.
func Load() Config {
	return Config{
		Port:       getenv("PORT", "8080"),
		JWTSecret:  getenv("JWT_SECRET", "dev-only-secret"),
		RedisAddr:  getenv("REDIS_ADDR", "localhost:6379"),
		RedisPass:  os.Getenv("REDIS_PASSWORD"),
		DBHost:     getenv("DB_HOST", "localhost"),
		DBUser:     getenv("DB_USER", "user"),
		DBPassword: getenv("DB_PASSWORD", "password"),
		DBName:     getenv("DB_NAME", "peerbaydb"),
		DBPort:     getenv("DB_PORT", "5432"),
	}
}

// DSN assembles the Postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
