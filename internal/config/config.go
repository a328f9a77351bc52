package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service and the CLI.
type Config struct {
	HTTPAddr         string
	DatabaseURL      string   // empty selects the in-memory store
	KafkaBrokers     []string // empty selects the in-memory bus
	KafkaGroupID     string
	TopicRaw         string
	TopicCorrections string
	ConsumerWorkers  int
	EventTimeout     time.Duration
	RetryBackoff     time.Duration
	BusMaxAttempts   int // deliveries per message on the in-memory bus
	MaxBatchSize     int
	LogLevel         slog.Level
	LogFormat        string // text or json
}

// Topics returns every topic the ledger consumes.
func (c *Config) Topics() []string {
	return []string{c.TopicRaw, c.TopicCorrections}
}

// Load reads the given .env files (missing ones are skipped) and then the
// process environment, which wins over the files. The process environment
// itself is left untouched.
func Load(envFiles ...string) (*Config, error) {
	fileVals := make(map[string]string)
	for _, f := range envFiles {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, seen := fileVals[k]; !seen {
				fileVals[k] = v
			}
		}
	}

	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVals[key]
		return v, ok
	})
}

// FromLookup builds a Config from lookup, applying defaults, and validates it.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	var errs []string
	getInt := func(key string, def int) int {
		raw := get(key, "")
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not an integer", key, raw))
			return def
		}
		return n
	}
	getDuration := func(key string, def time.Duration) time.Duration {
		raw := get(key, "")
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not a duration", key, raw))
			return def
		}
		return d
	}

	cfg := &Config{
		HTTPAddr:         get("HTTP_ADDR", ":8080"),
		DatabaseURL:      get("DATABASE_URL", ""),
		KafkaBrokers:     splitList(get("KAFKA_BROKERS", "")),
		KafkaGroupID:     get("KAFKA_GROUP_ID", "shadow-ledger-group"),
		TopicRaw:         get("TOPIC_RAW", "transactions.raw"),
		TopicCorrections: get("TOPIC_CORRECTIONS", "transactions.corrections"),
		ConsumerWorkers:  getInt("CONSUMER_WORKERS", 4),
		EventTimeout:     getDuration("EVENT_TIMEOUT", 5*time.Second),
		RetryBackoff:     getDuration("RETRY_BACKOFF", 500*time.Millisecond),
		BusMaxAttempts:   getInt("BUS_MAX_ATTEMPTS", 3),
		MaxBatchSize:     getInt("MAX_BATCH_SIZE", 500),
		LogFormat:        strings.ToLower(get("LOG_FORMAT", "text")),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL: %v", err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string
	if c.ConsumerWorkers < 1 {
		errs = append(errs, "CONSUMER_WORKERS must be at least 1")
	}
	if c.EventTimeout <= 0 {
		errs = append(errs, "EVENT_TIMEOUT must be positive")
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, "RETRY_BACKOFF must not be negative")
	}
	if c.BusMaxAttempts < 1 {
		errs = append(errs, "BUS_MAX_ATTEMPTS must be at least 1")
	}
	if c.MaxBatchSize < 1 {
		errs = append(errs, "MAX_BATCH_SIZE must be at least 1")
	}
	if c.TopicRaw == "" || c.TopicCorrections == "" {
		errs = append(errs, "TOPIC_RAW and TOPIC_CORRECTIONS are required")
	} else if c.TopicRaw == c.TopicCorrections {
		errs = append(errs, "TOPIC_RAW and TOPIC_CORRECTIONS must differ")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT %q must be text or json", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// NewLogger builds the slog logger described by the config.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
