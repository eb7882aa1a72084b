package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=debug info warn error"`

	// Inclusive calendar range of available days.
	CalendarStart string `validate:"required,datetime=2006-01-02"`
	CalendarEnd   string `validate:"required,datetime=2006-01-02"`

	// When DataBaseURL is empty, days are read from DataDir.
	DataBaseURL string `validate:"omitempty,url"`
	DataDir     string
	DayPattern  string `validate:"required,contains=%s"`
	FlowPattern string `validate:"required,contains=%s"`

	HTTPTimeout  time.Duration `validate:"gt=0"`
	FetchRetries int           `validate:"gte=0"`
	FetchBackoff time.Duration `validate:"gt=0"`

	MonthlyConcurrency int `validate:"gte=1"`
	WarmupOnStart      bool

	SessionIdleTTL       time.Duration `validate:"gte=0"`
	SessionPruneInterval time.Duration `validate:"gt=0"`

	// In-memory view store retention.
	StoreMaxHistory int           `validate:"gte=0"` // 0 = unlimited
	StoreMaxAge     time.Duration `validate:"gte=0"` // 0 = unlimited
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{
		Port:          getenvDefault("PORT", "8080"),
		LogLevel:      getenvDefault("LOG_LEVEL", "info"),
		CalendarStart: getenvDefault("CALENDAR_START", "2025-01-01"),
		CalendarEnd:   getenvDefault("CALENDAR_END", "2025-11-27"),
		DataBaseURL:   os.Getenv("DATA_BASE_URL"),
		DataDir:       getenvDefault("DATA_DIR", "./data"),
		DayPattern:    getenvDefault("DAY_PATTERN", "dailydata_clean/day_%s.json"),
		FlowPattern:   getenvDefault("FLOW_PATTERN", "flux_data/flux_%s.json"),

		FetchRetries:       getenvInt("FETCH_RETRIES", 0),
		MonthlyConcurrency: getenvInt("MONTHLY_CONCURRENCY", 8),
		WarmupOnStart:      getenvBool("WARMUP_ON_START", true),
		StoreMaxHistory:    getenvInt("STORE_MAX_HISTORY", 20),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", "10s", &cfg.HTTPTimeout},
		{"FETCH_BACKOFF", "500ms", &cfg.FetchBackoff},
		{"SESSION_IDLE_TTL", "30m", &cfg.SessionIdleTTL},
		{"SESSION_PRUNE_INTERVAL", "5m", &cfg.SessionPruneInterval},
		{"STORE_MAX_AGE", "24h", &cfg.StoreMaxAge},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the calendar range order.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// Both are YYYY-MM-DD, so string order is date order.
	if c.CalendarStart > c.CalendarEnd {
		return fmt.Errorf("invalid configuration: CALENDAR_START %s is after CALENDAR_END %s", c.CalendarStart, c.CalendarEnd)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}
