package discovery

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/you/streamwatch/internal/core"
)

// Backend queries one channel for candidate streams.
type Backend interface {
	Discover(ctx context.Context, channelHandle string) ([]core.DiscoveryCandidate, error)
}

// YtDlpConfig tunes the yt-dlp discovery backend.
type YtDlpConfig struct {
	Command       string // yt-dlp executable, default "yt-dlp"
	Timeout       time.Duration
	PlaylistLimit int
	ExtractFlat   bool
}

// YtDlpBackend shells out to yt-dlp to list a channel's recent and upcoming
// streams. The tool is treated as an opaque backend: non-zero exit, timeout
// and malformed output all surface as per-channel errors.
type YtDlpBackend struct {
	cfg YtDlpConfig
}

var handleRe = regexp.MustCompile(`^@?[a-zA-Z0-9_.-]+$`)

func NewYtDlpBackend(cfg YtDlpConfig) *YtDlpBackend {
	if cfg.Command == "" {
		cfg.Command = "yt-dlp"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.PlaylistLimit <= 0 {
		cfg.PlaylistLimit = 30
	}
	return &YtDlpBackend{cfg: cfg}
}

func (b *YtDlpBackend) Discover(ctx context.Context, channelHandle string) ([]core.DiscoveryCandidate, error) {
	channelURL, err := channelVideosURL(channelHandle)
	if err != nil {
		return nil, err
	}

	output, err := b.run(ctx, channelURL)
	if err != nil {
		return nil, err
	}

	entries := parseYtDlpOutput(output)
	candidates := make([]core.DiscoveryCandidate, 0, len(entries))
	for _, entry := range entries {
		if cand, ok := entry.toCandidate(); ok {
			candidates = append(candidates, cand)
		}
	}
	return candidates, nil
}

// channelVideosURL builds the /videos tab URL. The videos tab includes live
// and past-live uploads, which the dedicated /streams tab misses for some
// channels.
func channelVideosURL(handle string) (string, error) {
	if !handleRe.MatchString(handle) {
		return "", errors.Errorf("invalid channel handle format: %s", handle)
	}
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	return fmt.Sprintf("https://www.youtube.com/%s/videos", handle), nil
}

func (b *YtDlpBackend) run(ctx context.Context, channelURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	args := []string{
		"--dump-single-json",
		"--skip-download",
		"--no-warnings",
		"--quiet",
		"--playlist-items", fmt.Sprintf("1:%d", b.cfg.PlaylistLimit),
	}
	if b.cfg.ExtractFlat {
		args = append(args, "--extract-flat")
	}
	args = append(args, channelURL)

	cmd := exec.CommandContext(ctx, b.cfg.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Errorf("yt-dlp timed out after %s", b.cfg.Timeout)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, errors.Errorf("yt-dlp failed: %s", firstLine(detail))
	}
	return stdout.Bytes(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
