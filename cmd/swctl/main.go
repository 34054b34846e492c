// swctl runs one-shot discovery or refresh passes against a streamwatch
// database, for operators and local development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/you/streamwatch/internal/config"
	"github.com/you/streamwatch/internal/discovery"
	"github.com/you/streamwatch/internal/refresher"
	"github.com/you/streamwatch/internal/seed"
	"github.com/you/streamwatch/internal/store"
	"github.com/you/streamwatch/internal/youtube"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: swctl [flags] <command>

commands:
  discover          run one discovery pass over all active channels
  refresh           refresh metadata for LIVE events
  refresh-all       refresh metadata for all non-ENDED events
  refresh-event ID  refresh metadata for a single event
  seed FILE         load channels from a seed file

flags:
`)
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(0)

	var (
		dbPath  string
		timeout time.Duration
	)
	flag.StringVar(&dbPath, "sqlite", "", "Path to SQLite database file (overrides SW_DB_PATH)")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Overall command timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.Load()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("swctl: open sqlite: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch flag.Arg(0) {
	case "discover":
		runDiscover(ctx, cfg, db)
	case "refresh":
		runRefresh(ctx, cfg, db, "live", "")
	case "refresh-all":
		runRefresh(ctx, cfg, db, "all", "")
	case "refresh-event":
		if flag.NArg() < 2 {
			log.Fatal("swctl: refresh-event requires an event id")
		}
		runRefresh(ctx, cfg, db, "event", flag.Arg(1))
	case "seed":
		if flag.NArg() < 2 {
			log.Fatal("swctl: seed requires a file path")
		}
		n, err := seed.Load(ctx, db, flag.Arg(1))
		if err != nil {
			log.Fatalf("swctl: seed: %v", err)
		}
		printJSON(map[string]int{"channels": n})
	default:
		log.Fatalf("swctl: unknown command %q", flag.Arg(0))
	}
}

func runDiscover(ctx context.Context, cfg config.Config, db *store.Store) {
	metrics := discovery.NewMetrics(prometheus.NewRegistry())
	backend := discovery.NewYtDlpBackend(discovery.YtDlpConfig{
		Command:       cfg.YtDlp.Command,
		Timeout:       cfg.YtDlpTimeout(),
		PlaylistLimit: cfg.YtDlp.PlaylistLimit,
		ExtractFlat:   cfg.YtDlp.ExtractFlat,
	})
	orch := discovery.NewOrchestrator(db, backend, discovery.NewReconciler(db), metrics, discovery.Options{
		MaxConcurrency: cfg.Discover.MaxConcurrency,
		ChannelDelay:   cfg.ChannelDelay(),
	})
	res, err := orch.Run(ctx)
	if err != nil {
		log.Fatalf("swctl: discover: %v", err)
	}
	printJSON(res)
}

func runRefresh(ctx context.Context, cfg config.Config, db *store.Store, scope, eventID string) {
	metrics := refresher.NewMetrics(prometheus.NewRegistry())
	oembed := youtube.NewOEmbedClient(youtube.OEmbedConfig{
		Timeout:    cfg.OEmbedTimeout(),
		RetryMax:   cfg.OEmbed.RetryMax,
		RetryDelay: cfg.OEmbedRetryDelay(),
	}, metrics.OEmbedErrors)
	ref := refresher.New(db, oembed, metrics, refresher.Options{
		BatchSize:  cfg.Refresh.BatchSize,
		BatchDelay: cfg.BatchDelay(),
	})

	switch scope {
	case "live":
		res, err := ref.RefreshLive(ctx)
		if err != nil {
			log.Fatalf("swctl: refresh: %v", err)
		}
		printJSON(res)
	case "all":
		res, err := ref.RefreshAll(ctx)
		if err != nil {
			log.Fatalf("swctl: refresh-all: %v", err)
		}
		printJSON(res)
	case "event":
		updated, err := ref.RefreshEvent(ctx, eventID)
		if err != nil {
			log.Fatalf("swctl: refresh-event: %v", err)
		}
		printJSON(map[string]any{"id": eventID, "updated": updated})
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("swctl: encode result: %v", err)
	}
	fmt.Println(string(out))
}
