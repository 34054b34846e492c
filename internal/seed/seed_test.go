package seed

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/you/streamwatch/internal/core"
)

type fakeChannelStore struct {
	mu      sync.Mutex
	upserts []core.ArtistChannel
}

func (f *fakeChannelStore) UpsertChannel(_ context.Context, ch core.ArtistChannel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, ch)
	return nil
}

func (f *fakeChannelStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func writeSeedFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "channels.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

func TestLoadUpsertsChannels(t *testing.T) {
	path := writeSeedFile(t, t.TempDir(), `[
		{"channel_handle": "alpha", "artist_id": "artist-a"},
		{"channel_handle": "beta", "artist_id": "artist-b", "platform": "youtube", "active": false}
	]`)

	store := &fakeChannelStore{}
	n, err := Load(context.Background(), store, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 2 {
		t.Fatalf("loaded = %d, want 2", n)
	}
	if store.upserts[0].Platform != "YOUTUBE" || !store.upserts[0].Active {
		t.Fatalf("expected defaults applied, got %+v", store.upserts[0])
	}
	if store.upserts[1].Active {
		t.Fatal("explicit active=false ignored")
	}
}

func TestLoadSkipsIncompleteEntries(t *testing.T) {
	path := writeSeedFile(t, t.TempDir(), `[
		{"channel_handle": "", "artist_id": "artist-a"},
		{"channel_handle": "beta", "artist_id": ""},
		{"channel_handle": "gamma", "artist_id": "artist-c"}
	]`)

	store := &fakeChannelStore{}
	n, err := Load(context.Background(), store, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 1 || len(store.upserts) != 1 {
		t.Fatalf("expected exactly one loaded channel, got %d", n)
	}
	if store.upserts[0].ChannelHandle != "gamma" {
		t.Fatalf("unexpected channel %s", store.upserts[0].ChannelHandle)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeSeedFile(t, t.TempDir(), `{"not": "an array"}`)
	if _, err := Load(context.Background(), &fakeChannelStore{}, path); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(context.Background(), &fakeChannelStore{}, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected read error for missing file")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeSeedFile(t, dir, `[{"channel_handle": "alpha", "artist_id": "artist-a"}]`)

	store := &fakeChannelStore{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := Watch(ctx, store, path); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.WriteFile(path, []byte(`[
		{"channel_handle": "alpha", "artist_id": "artist-a"},
		{"channel_handle": "beta", "artist_id": "artist-b"}
	]`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if store.count() >= 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("watcher never reloaded, upserts=%d", store.count())
		}
		time.Sleep(25 * time.Millisecond)
	}
}
