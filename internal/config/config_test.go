package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lookupFrom(vals map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vals[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.DatabaseURL != "" || len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TopicRaw != "transactions.raw" || cfg.TopicCorrections != "transactions.corrections" {
		t.Fatalf("topics=%v", cfg.Topics())
	}
	if cfg.ConsumerWorkers != 4 || cfg.EventTimeout != 5*time.Second || cfg.LogLevel != slog.LevelInfo || cfg.BusMaxAttempts != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"KAFKA_BROKERS":    "k1:9092, k2:9092,",
		"CONSUMER_WORKERS": "8",
		"EVENT_TIMEOUT":    "2s",
		"LOG_LEVEL":        "debug",
		"LOG_FORMAT":       "JSON",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers=%v", cfg.KafkaBrokers)
	}
	if cfg.ConsumerWorkers != 8 || cfg.EventTimeout != 2*time.Second {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "json" {
		t.Fatalf("log settings %v %s", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestInvalidValuesAreReportedTogether(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"CONSUMER_WORKERS": "many",
		"EVENT_TIMEOUT":    "soon",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"CONSUMER_WORKERS", "EVENT_TIMEOUT"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestValidate(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"TOPIC_RAW":         "same",
		"TOPIC_CORRECTIONS": "same",
		"CONSUMER_WORKERS":  "0",
		"BUS_MAX_ATTEMPTS":  "0",
		"LOG_FORMAT":        "xml",
	}))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"must differ", "CONSUMER_WORKERS", "BUS_MAX_ATTEMPTS", "LOG_FORMAT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "TOPIC_RAW=from-file.raw\nMAX_BATCH_SIZE=42\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAX_BATCH_SIZE", "7")

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TopicRaw != "from-file.raw" {
		t.Fatalf("TopicRaw=%s want from-file.raw", cfg.TopicRaw)
	}
	// the environment wins over the file
	if cfg.MaxBatchSize != 7 {
		t.Fatalf("MaxBatchSize=%d want 7", cfg.MaxBatchSize)
	}
}
