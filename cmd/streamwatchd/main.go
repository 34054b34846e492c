package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/you/streamwatch/internal/config"
	"github.com/you/streamwatch/internal/core"
	"github.com/you/streamwatch/internal/discovery"
	"github.com/you/streamwatch/internal/httpapi"
	"github.com/you/streamwatch/internal/lock"
	"github.com/you/streamwatch/internal/refresher"
	"github.com/you/streamwatch/internal/scheduler"
	"github.com/you/streamwatch/internal/seed"
	"github.com/you/streamwatch/internal/store"
	"github.com/you/streamwatch/internal/version"
	"github.com/you/streamwatch/internal/youtube"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		versionFlag   bool
		envFile       string
		dbPath        string
		httpAddr      string
		seedFile      string
		discoverFlag  bool
		refreshFlag   bool
		lockProvider  string
		httpAccessLog bool
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&envFile, "env-file", "", "Path to an env file to load before reading configuration")
	flag.StringVar(&dbPath, "sqlite", "", "Path to SQLite database file")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP API address (e.g., :8080)")
	flag.StringVar(&seedFile, "seed-channels", "", "Path to channel seed file (JSON)")
	flag.BoolVar(&discoverFlag, "discover", false, "Enable the scheduled discovery job")
	flag.BoolVar(&refreshFlag, "refresh", false, "Enable the scheduled metadata refresh jobs")
	flag.StringVar(&lockProvider, "lock-provider", "", "Scheduler lock provider: sql or redis")
	flag.BoolVar(&httpAccessLog, "http-access-log", true, "Log HTTP access records")
	flag.Parse()

	if versionFlag {
		fmt.Printf("streamwatchd version: %s (commit %s, built %s)\n", version.Version, version.Commit, version.Built)
		os.Exit(0)
	}

	if envFile == "" {
		envFile = strings.TrimSpace(os.Getenv("ENV_FILE"))
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Fatalf("streamwatchd: load env file %s: %v", envFile, err)
		}
	} else if err := godotenv.Load(); err == nil {
		log.Printf("streamwatchd: loaded .env")
	}

	cfg := config.Load()

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})
	if overrides["sqlite"] {
		cfg.DBPath = strings.TrimSpace(dbPath)
	}
	if overrides["http-addr"] {
		cfg.HTTP.Addr = strings.TrimSpace(httpAddr)
	}
	if overrides["seed-channels"] {
		cfg.SeedFile = strings.TrimSpace(seedFile)
	}
	if overrides["discover"] {
		cfg.Discover.Enabled = discoverFlag
	}
	if overrides["refresh"] {
		cfg.Refresh.Enabled = refreshFlag
	}
	if overrides["lock-provider"] {
		cfg.Lock.Provider = strings.ToLower(strings.TrimSpace(lockProvider))
	}

	log.Printf("%s", cfg.RedactedJSON())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("streamwatchd: open sqlite: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("streamwatchd: closing store: %v", err)
		}
	}()
	if err := db.Ping(); err != nil {
		log.Fatalf("streamwatchd: ping sqlite: %v", err)
	}

	if cfg.SeedFile != "" {
		n, err := seed.Load(ctx, db, cfg.SeedFile)
		if err != nil {
			log.Fatalf("streamwatchd: seed channels: %v", err)
		}
		log.Printf("streamwatchd: seeded %d channels from %s", n, cfg.SeedFile)
		go func() {
			if err := seed.Watch(ctx, db, cfg.SeedFile); err != nil {
				log.Printf("streamwatchd: seed watcher stopped: %v", err)
			}
		}()
	}

	apiMetrics := httpapi.NewMetrics()
	registry := apiMetrics.Registry()

	discMetrics := discovery.NewMetrics(registry)
	backend := discovery.NewBreakerBackend(discovery.NewYtDlpBackend(discovery.YtDlpConfig{
		Command:       cfg.YtDlp.Command,
		Timeout:       cfg.YtDlpTimeout(),
		PlaylistLimit: cfg.YtDlp.PlaylistLimit,
		ExtractFlat:   cfg.YtDlp.ExtractFlat,
	}), discMetrics)
	orch := discovery.NewOrchestrator(db, backend, discovery.NewReconciler(db), discMetrics, discovery.Options{
		MaxConcurrency: cfg.Discover.MaxConcurrency,
		ChannelDelay:   cfg.ChannelDelay(),
	})

	refMetrics := refresher.NewMetrics(registry)
	oembed := youtube.NewOEmbedClient(youtube.OEmbedConfig{
		Timeout:    cfg.OEmbedTimeout(),
		RetryMax:   cfg.OEmbed.RetryMax,
		RetryDelay: cfg.OEmbedRetryDelay(),
	}, refMetrics.OEmbedErrors)
	ref := refresher.New(db, oembed, refMetrics, refresher.Options{
		BatchSize:  cfg.Refresh.BatchSize,
		BatchDelay: cfg.BatchDelay(),
	})

	admin := httpapi.Admin{
		Discover: func(ctx context.Context) (*core.LiveDiscoveryResult, error) {
			res, err := orch.Run(ctx)
			if err != nil {
				return nil, err
			}
			return &res, nil
		},
		RefreshLive: func(ctx context.Context) (*core.RefreshResult, error) {
			res, err := ref.RefreshLive(ctx)
			if err != nil {
				return nil, err
			}
			return &res, nil
		},
		RefreshAll: func(ctx context.Context) (*core.RefreshResult, error) {
			res, err := ref.RefreshAll(ctx)
			if err != nil {
				return nil, err
			}
			return &res, nil
		},
		RefreshEvent: ref.RefreshEvent,
		ConfigJSON: func() ([]byte, error) {
			return cfg.RedactedJSON(), nil
		},
	}

	api := httpapi.NewServer(db, admin, apiMetrics, httpapi.Options{
		Addr:           cfg.HTTP.Addr,
		RateLimitRPS:   cfg.HTTP.RateRPS,
		RateLimitBurst: cfg.HTTP.RateBurst,
		AccessLog:      httpAccessLog,
	})
	orch.Notify = api.Broadcast

	var harness *scheduler.Harness
	if cfg.Discover.Enabled || cfg.Refresh.Enabled {
		locks, err := buildLockProvider(cfg, db)
		if err != nil {
			log.Fatalf("streamwatchd: lock provider: %v", err)
		}
		harness = scheduler.New(locks, registry)

		if cfg.Discover.Enabled {
			job := scheduler.Job{
				Name:       "stream-discovery",
				Spec:       cfg.Discover.Cron,
				MaxHold:    cfg.LockMaxHold(),
				MinHold:    cfg.LockMinHold(),
				RunTimeout: cfg.LockMaxHold(),
				Run: func(ctx context.Context) error {
					res, err := orch.Run(ctx)
					if err != nil {
						return err
					}
					log.Printf("discovery: run complete total=%d upserted=%d failed=%d", res.Total, res.Upserted, res.Failed)
					return nil
				},
			}
			if err := harness.Add(job); err != nil {
				log.Fatalf("streamwatchd: add discovery job: %v", err)
			}
		}

		if cfg.Refresh.Enabled {
			liveJob := scheduler.Job{
				Name:       "metadata-refresh-live",
				Spec:       cfg.Refresh.LiveCron,
				MaxHold:    cfg.LockMaxHold(),
				MinHold:    cfg.LockMinHold(),
				RunTimeout: cfg.LockMaxHold(),
				Run: func(ctx context.Context) error {
					res, err := ref.RefreshLive(ctx)
					if err != nil {
						return err
					}
					log.Printf("refresher: live run complete total=%d updated=%d failed=%d", res.Total, res.Updated, res.Failed)
					return nil
				},
			}
			if err := harness.Add(liveJob); err != nil {
				log.Fatalf("streamwatchd: add live refresh job: %v", err)
			}

			allJob := scheduler.Job{
				Name:       "metadata-refresh-all",
				Spec:       cfg.Refresh.AllCron,
				MaxHold:    cfg.LockMaxHold(),
				MinHold:    cfg.LockMinHold(),
				RunTimeout: cfg.LockMaxHold(),
				Run: func(ctx context.Context) error {
					res, err := ref.RefreshAll(ctx)
					if err != nil {
						return err
					}
					log.Printf("refresher: full run complete total=%d updated=%d failed=%d", res.Total, res.Updated, res.Failed)
					return nil
				},
			}
			if err := harness.Add(allJob); err != nil {
				log.Fatalf("streamwatchd: add full refresh job: %v", err)
			}
		}

		harness.Start()
		log.Printf("streamwatchd: scheduler started (discover=%t refresh=%t lock=%s)",
			cfg.Discover.Enabled, cfg.Refresh.Enabled, cfg.Lock.Provider)
	} else {
		log.Printf("streamwatchd: scheduled jobs disabled; API-only mode")
	}

	if cfg.HTTP.Addr != "" {
		go func() {
			if err := api.Start(); err != nil {
				log.Fatalf("streamwatchd: http api: %v", err)
			}
		}()
		log.Printf("streamwatchd: http api ready on %s", cfg.HTTP.Addr)
	}

	<-ctx.Done()
	log.Printf("streamwatchd: shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if harness != nil {
		harness.Stop(shutdownCtx)
	}
	if cfg.HTTP.Addr != "" {
		if err := api.Shutdown(shutdownCtx); err != nil {
			log.Printf("streamwatchd: http api shutdown: %v", err)
		}
	}
	log.Printf("streamwatchd: shutdown complete")
}

func buildLockProvider(cfg config.Config, db *store.Store) (lock.Provider, error) {
	switch cfg.Lock.Provider {
	case "", "sql":
		return lock.NewSQLProvider(db.DB()), nil
	case "redis":
		if cfg.Redis.URL == "" {
			return nil, fmt.Errorf("lock provider redis requires SW_REDIS_URL")
		}
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		return lock.NewRedisProvider(redis.NewClient(opts)), nil
	default:
		return nil, fmt.Errorf("unknown lock provider %q (want sql or redis)", cfg.Lock.Provider)
	}
}
