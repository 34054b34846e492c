package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBPath   string
	Redis    RedisConfig
	YtDlp    YtDlpConfig
	Discover DiscoverConfig
	Refresh  RefreshConfig
	OEmbed   OEmbedConfig
	Lock     LockConfig
	HTTP     HTTPConfig
	SeedFile string
}

type RedisConfig struct {
	URL      string
	Password string
}

type YtDlpConfig struct {
	Command       string
	TimeoutMS     int
	PlaylistLimit int
	ExtractFlat   bool
}

type DiscoverConfig struct {
	Enabled        bool
	Cron           string
	MaxConcurrency int
	ChannelDelayMS int
}

type RefreshConfig struct {
	Enabled      bool
	LiveCron     string
	AllCron      string
	BatchSize    int
	BatchDelayMS int
}

type OEmbedConfig struct {
	TimeoutMS    int
	RetryMax     int
	RetryDelayMS int
}

type LockConfig struct {
	Provider  string // "sql" or "redis"
	MaxHoldMS int
	MinHoldMS int
}

type HTTPConfig struct {
	Addr      string
	RateRPS   int
	RateBurst int
}

const (
	defaultDBPath         = "streamwatch.db"
	defaultYtDlpCommand   = "yt-dlp"
	defaultYtDlpTimeoutMS = 20000
	defaultPlaylistLimit  = 30
	defaultConcurrency    = 5
	defaultDiscoverCron   = "0 * * * *"
	defaultLiveCron       = "0 * * * *"
	defaultAllCron        = "0 0 * * *"
	defaultBatchSize      = 50
	defaultBatchDelayMS   = 1000
	defaultOEmbedTimeout  = 5000
	defaultRetryMax       = 3
	defaultRetryDelayMS   = 1000
	defaultMaxHoldMS      = 50 * 60 * 1000
	defaultMinHoldMS      = 5 * 60 * 1000
	defaultRateRPS        = 20
	defaultRateBurst      = 40
)

func Load() Config {
	cfg := Config{}

	cfg.DBPath = strings.TrimSpace(os.Getenv("SW_DB_PATH"))
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}

	cfg.Redis.URL = strings.TrimSpace(os.Getenv("SW_REDIS_URL"))
	cfg.Redis.Password = strings.TrimSpace(os.Getenv("SW_REDIS_PASSWORD"))

	cfg.YtDlp.Command = strings.TrimSpace(os.Getenv("SW_YTDLP_COMMAND"))
	if cfg.YtDlp.Command == "" {
		cfg.YtDlp.Command = defaultYtDlpCommand
	}
	cfg.YtDlp.TimeoutMS = readInt("SW_YTDLP_TIMEOUT_MS", defaultYtDlpTimeoutMS)
	cfg.YtDlp.PlaylistLimit = readInt("SW_YTDLP_PLAYLIST_LIMIT", defaultPlaylistLimit)
	cfg.YtDlp.ExtractFlat = readBool("SW_YTDLP_EXTRACT_FLAT", false)

	cfg.Discover.Enabled = readBool("SW_DISCOVERY_ENABLED", false)
	cfg.Discover.Cron = readString("SW_DISCOVERY_CRON", defaultDiscoverCron)
	cfg.Discover.MaxConcurrency = readInt("SW_DISCOVERY_MAX_CONCURRENCY", defaultConcurrency)
	cfg.Discover.ChannelDelayMS = readIntAllowZero("SW_DISCOVERY_CHANNEL_DELAY_MS", 0)

	cfg.Refresh.Enabled = readBool("SW_REFRESH_ENABLED", false)
	cfg.Refresh.LiveCron = readString("SW_REFRESH_LIVE_CRON", defaultLiveCron)
	cfg.Refresh.AllCron = readString("SW_REFRESH_ALL_CRON", defaultAllCron)
	cfg.Refresh.BatchSize = readInt("SW_REFRESH_BATCH_SIZE", defaultBatchSize)
	cfg.Refresh.BatchDelayMS = readIntAllowZero("SW_REFRESH_BATCH_DELAY_MS", defaultBatchDelayMS)

	cfg.OEmbed.TimeoutMS = readInt("SW_OEMBED_TIMEOUT_MS", defaultOEmbedTimeout)
	cfg.OEmbed.RetryMax = readInt("SW_OEMBED_RETRY_MAX", defaultRetryMax)
	cfg.OEmbed.RetryDelayMS = readInt("SW_OEMBED_RETRY_DELAY_MS", defaultRetryDelayMS)

	cfg.Lock.Provider = strings.ToLower(readString("SW_LOCK_PROVIDER", "sql"))
	cfg.Lock.MaxHoldMS = readInt("SW_LOCK_MAX_HOLD_MS", defaultMaxHoldMS)
	cfg.Lock.MinHoldMS = readIntAllowZero("SW_LOCK_MIN_HOLD_MS", defaultMinHoldMS)

	cfg.HTTP.Addr = strings.TrimSpace(os.Getenv("SW_HTTP_ADDR"))
	cfg.HTTP.RateRPS = readInt("SW_HTTP_RATE_RPS", defaultRateRPS)
	cfg.HTTP.RateBurst = readInt("SW_HTTP_RATE_BURST", defaultRateBurst)

	cfg.SeedFile = strings.TrimSpace(os.Getenv("SW_SEED_CHANNELS_FILE"))

	return cfg
}

func readString(name, def string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	return raw
}

func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func readIntAllowZero(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func (c Config) YtDlpTimeout() time.Duration {
	return time.Duration(c.YtDlp.TimeoutMS) * time.Millisecond
}

func (c Config) ChannelDelay() time.Duration {
	return time.Duration(c.Discover.ChannelDelayMS) * time.Millisecond
}

func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.Refresh.BatchDelayMS) * time.Millisecond
}

func (c Config) OEmbedTimeout() time.Duration {
	return time.Duration(c.OEmbed.TimeoutMS) * time.Millisecond
}

func (c Config) OEmbedRetryDelay() time.Duration {
	return time.Duration(c.OEmbed.RetryDelayMS) * time.Millisecond
}

func (c Config) LockMaxHold() time.Duration {
	return time.Duration(c.Lock.MaxHoldMS) * time.Millisecond
}

func (c Config) LockMinHold() time.Duration {
	return time.Duration(c.Lock.MinHoldMS) * time.Millisecond
}

// Redacted returns a loggable view of the configuration with credentials
// masked.
func (c Config) Redacted() map[string]any {
	return map[string]any{
		"db_path": c.DBPath,
		"redis": map[string]any{
			"url":      c.Redis.URL,
			"password": redactString(c.Redis.Password),
		},
		"ytdlp": map[string]any{
			"command":        c.YtDlp.Command,
			"timeout_ms":     c.YtDlp.TimeoutMS,
			"playlist_limit": c.YtDlp.PlaylistLimit,
			"extract_flat":   c.YtDlp.ExtractFlat,
		},
		"discovery": map[string]any{
			"enabled":          c.Discover.Enabled,
			"cron":             c.Discover.Cron,
			"max_concurrency":  c.Discover.MaxConcurrency,
			"channel_delay_ms": c.Discover.ChannelDelayMS,
		},
		"refresh": map[string]any{
			"enabled":        c.Refresh.Enabled,
			"live_cron":      c.Refresh.LiveCron,
			"all_cron":       c.Refresh.AllCron,
			"batch_size":     c.Refresh.BatchSize,
			"batch_delay_ms": c.Refresh.BatchDelayMS,
		},
		"oembed": map[string]any{
			"timeout_ms":     c.OEmbed.TimeoutMS,
			"retry_max":      c.OEmbed.RetryMax,
			"retry_delay_ms": c.OEmbed.RetryDelayMS,
		},
		"lock": map[string]any{
			"provider":    c.Lock.Provider,
			"max_hold_ms": c.Lock.MaxHoldMS,
			"min_hold_ms": c.Lock.MinHoldMS,
		},
		"http": map[string]any{
			"addr":       c.HTTP.Addr,
			"rate_rps":   c.HTTP.RateRPS,
			"rate_burst": c.HTTP.RateBurst,
		},
		"seed_channels_file": c.SeedFile,
	}
}

func (c Config) RedactedJSON() []byte {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return data
}

func redactString(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "***REDACTED*** (len=" + strconv.Itoa(len(value)) + ")"
}
