package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.DBPath != "streamwatch.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.YtDlp.Command != "yt-dlp" || cfg.YtDlp.PlaylistLimit != 30 {
		t.Fatalf("ytdlp defaults %+v", cfg.YtDlp)
	}
	if cfg.YtDlpTimeout() != 20*time.Second {
		t.Fatalf("ytdlp timeout = %v", cfg.YtDlpTimeout())
	}
	if cfg.Discover.MaxConcurrency != 5 {
		t.Fatalf("concurrency = %d", cfg.Discover.MaxConcurrency)
	}
	if cfg.Discover.Enabled || cfg.Refresh.Enabled {
		t.Fatal("jobs must default to disabled")
	}
	if cfg.Refresh.BatchSize != 50 || cfg.BatchDelay() != time.Second {
		t.Fatalf("refresh defaults %+v", cfg.Refresh)
	}
	if cfg.Lock.Provider != "sql" {
		t.Fatalf("lock provider = %q", cfg.Lock.Provider)
	}
	if cfg.LockMaxHold() != 50*time.Minute || cfg.LockMinHold() != 5*time.Minute {
		t.Fatalf("lock holds %v / %v", cfg.LockMaxHold(), cfg.LockMinHold())
	}
	if cfg.HTTP.RateRPS != 20 || cfg.HTTP.RateBurst != 40 {
		t.Fatalf("http rate defaults %+v", cfg.HTTP)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SW_DB_PATH", "/data/events.db")
	t.Setenv("SW_DISCOVERY_ENABLED", "true")
	t.Setenv("SW_DISCOVERY_MAX_CONCURRENCY", "12")
	t.Setenv("SW_DISCOVERY_CHANNEL_DELAY_MS", "0")
	t.Setenv("SW_REFRESH_BATCH_SIZE", "10")
	t.Setenv("SW_LOCK_PROVIDER", "Redis")
	t.Setenv("SW_YTDLP_TIMEOUT_MS", "false") // garbage falls back to default

	cfg := Load()
	if cfg.DBPath != "/data/events.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if !cfg.Discover.Enabled {
		t.Fatal("discovery should be enabled")
	}
	if cfg.Discover.MaxConcurrency != 12 {
		t.Fatalf("concurrency = %d", cfg.Discover.MaxConcurrency)
	}
	if cfg.Discover.ChannelDelayMS != 0 {
		t.Fatalf("explicit zero delay not honored: %d", cfg.Discover.ChannelDelayMS)
	}
	if cfg.Refresh.BatchSize != 10 {
		t.Fatalf("batch size = %d", cfg.Refresh.BatchSize)
	}
	if cfg.Lock.Provider != "redis" {
		t.Fatalf("lock provider = %q", cfg.Lock.Provider)
	}
	if cfg.YtDlp.TimeoutMS != 20000 {
		t.Fatalf("bad timeout should fall back, got %d", cfg.YtDlp.TimeoutMS)
	}
}

func TestReadIntRejectsNonPositive(t *testing.T) {
	t.Setenv("SW_REFRESH_BATCH_SIZE", "-3")
	cfg := Load()
	if cfg.Refresh.BatchSize != 50 {
		t.Fatalf("negative batch size should fall back, got %d", cfg.Refresh.BatchSize)
	}
}

func TestRedactedMasksSecrets(t *testing.T) {
	t.Setenv("SW_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("SW_REDIS_PASSWORD", "hunter2secret")

	cfg := Load()
	out := string(cfg.RedactedJSON())

	if strings.Contains(out, "hunter2secret") {
		t.Fatal("password leaked into redacted output")
	}
	if !strings.Contains(out, "***REDACTED*** (len=13)") {
		t.Fatalf("expected masked password marker, got %s", out)
	}
	if !strings.Contains(out, "redis://cache:6379/0") {
		t.Fatal("redis url should remain visible")
	}
}

func TestRedactedEmptyPasswordStaysEmpty(t *testing.T) {
	cfg := Load()
	out := string(cfg.RedactedJSON())
	if strings.Contains(out, "REDACTED") {
		t.Fatal("no secret configured, nothing should be marked redacted")
	}
}
