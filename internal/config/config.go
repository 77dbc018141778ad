package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL string
	ServerAddr  string

	// SchedulerInterval is how often the timeout scheduler ticks.
	SchedulerInterval time.Duration
	// ConfirmEscalateAfter is stage one of the confirmation timeout.
	ConfirmEscalateAfter time.Duration
	// AutoCompleteAfter is stage two of the confirmation timeout.
	AutoCompleteAfter time.Duration
	// ReservationTTL bounds how long an accepted trade holds its products.
	ReservationTTL time.Duration

	// NotificationInterval is how often pending notifications are redelivered.
	NotificationInterval time.Duration

	// CycleMaxDepth caps barter cycle length during matching.
	CycleMaxDepth int

	// AuditSigningKey signs audit records when set.
	AuditSigningKey []byte
}

// Load reads configuration from the environment, seeded from .env when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "barterhub")
		pass := getenv("POSTGRES_PASSWORD", "barterhub_pass")
		db := getenv("POSTGRES_DB", "barterhub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	cfg := &Config{
		DatabaseURL:          dsn,
		ServerAddr:           getenv("SERVER_ADDR", "0.0.0.0:8080"),
		SchedulerInterval:    parseDuration(getenv("SCHEDULER_INTERVAL", "5m"), 5*time.Minute),
		ConfirmEscalateAfter: parseDuration(getenv("CONFIRM_ESCALATE_AFTER", "24h"), 24*time.Hour),
		AutoCompleteAfter:    parseDuration(getenv("AUTO_COMPLETE_AFTER", "48h"), 48*time.Hour),
		ReservationTTL:       parseDuration(getenv("RESERVATION_TTL", "72h"), 72*time.Hour),
		NotificationInterval: parseDuration(getenv("NOTIFICATION_INTERVAL", "30s"), 30*time.Second),
		CycleMaxDepth:        parseInt(getenv("CYCLE_MAX_DEPTH", "6"), 6),
	}
	if key := os.Getenv("AUDIT_SIGNING_KEY"); key != "" {
		cfg.AuditSigningKey = []byte(key)
	}
	if cfg.AutoCompleteAfter <= cfg.ConfirmEscalateAfter {
		return nil, fmt.Errorf("AUTO_COMPLETE_AFTER (%s) must exceed CONFIRM_ESCALATE_AFTER (%s)",
			cfg.AutoCompleteAfter, cfg.ConfirmEscalateAfter)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
