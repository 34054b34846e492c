// Package seed loads artist channels from a JSON file into the store and
// keeps them in sync while the daemon runs.
package seed

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/you/streamwatch/internal/core"
)

// ChannelStore is the subset of the store the loader writes to.
type ChannelStore interface {
	UpsertChannel(ctx context.Context, ch core.ArtistChannel) error
}

type seedChannel struct {
	ChannelHandle string `json:"channel_handle"`
	ArtistID      string `json:"artist_id"`
	Platform      string `json:"platform"`
	Active        *bool  `json:"active"`
}

// Load reads the seed file and upserts every channel entry. Entries without
// a handle or artist ID are skipped with a log line.
func Load(ctx context.Context, store ChannelStore, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "read seed file")
	}

	var entries []seedChannel
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, errors.Wrap(err, "parse seed file")
	}

	loaded := 0
	for _, entry := range entries {
		handle := strings.TrimSpace(entry.ChannelHandle)
		if handle == "" || strings.TrimSpace(entry.ArtistID) == "" {
			log.Printf("seed: skipping entry with missing handle or artist id")
			continue
		}
		platform := strings.ToUpper(strings.TrimSpace(entry.Platform))
		if platform == "" {
			platform = "YOUTUBE"
		}
		active := true
		if entry.Active != nil {
			active = *entry.Active
		}
		ch := core.ArtistChannel{
			ChannelHandle: handle,
			ArtistID:      entry.ArtistID,
			Platform:      platform,
			Active:        active,
		}
		if err := store.UpsertChannel(ctx, ch); err != nil {
			log.Printf("seed: upsert channel %s: %v", handle, err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Watch reloads the seed file whenever it changes. Editors replace files via
// rename, so removed paths are re-added to the watcher.
func Watch(ctx context.Context, store ChannelStore, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return errors.Wrapf(err, "watch %s", path)
	}

	go func() {
		defer w.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := w.Add(ev.Name); err != nil {
						slog.Error("seed watch re-add", "path", ev.Name, "err", err)
					}
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(250 * time.Millisecond)
				}
			case <-debounce.C:
				if n, err := Load(ctx, store, path); err != nil {
					slog.Error("seed reload failed", "err", err)
				} else {
					log.Printf("seed: reloaded %d channels from %s", n, path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("seed watch error", "err", err)
			}
		}
	}()
	return nil
}
