// Package media wraps the external tools the bot shells out to: yt-dlp for
// fetching, ffprobe for inspection and ffmpeg for transcoding.
package media

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BrianAllred/TelegramVideoBot/internal/logx"
)

// ErrUnsupportedSource means yt-dlp has no extractor for the URL.
var ErrUnsupportedSource = errors.New("media: no extractor recognizes this url")

// unsupportedURLMarker is the literal yt-dlp prints when no extractor matches.
// String matching against a third-party tool's output is brittle; keeping the
// literal and its check here lets it be updated without touching the pipeline.
const unsupportedURLMarker = "Unsupported URL"

// IsUnsupportedURL reports whether a yt-dlp output blob signals an
// unrecognized URL.
func IsUnsupportedURL(output string) bool {
	return strings.Contains(output, unsupportedURLMarker)
}

// Downloader fetches videos into the working directory via yt-dlp.
type Downloader struct {
	dir     string
	limitMB int
	run     runner
}

func NewDownloader(dir string, limitMB int, timeout time.Duration) *Downloader {
	return &Downloader{dir: dir, limitMB: limitMB, run: runner{timeout: timeout}}
}

// BuildFetchArgs builds the yt-dlp invocation: best video+audio combination,
// sorted to bias toward the upload ceiling, written as <userID>.<ext>.
func BuildFetchArgs(dir string, limitMB int, userID int64, url string) []string {
	return []string{
		"-f", "bv*+ba/b",
		"-S", fmt.Sprintf("filesize~%dM", limitMB),
		"-o", filepath.Join(dir, fmt.Sprintf("%d.%%(ext)s", userID)),
		url,
	}
}

// Fetch downloads the URL for the given user. The working file lands in the
// downloader's directory under the user's naming pattern; callers locate it
// afterwards since yt-dlp picks the extension.
func (d *Downloader) Fetch(ctx context.Context, userID int64, url string) error {
	out, err := d.run.combined(ctx, "yt-dlp", BuildFetchArgs(d.dir, d.limitMB, userID, url)...)
	if IsUnsupportedURL(out) {
		return ErrUnsupportedSource
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	return nil
}

// SelfUpdate upgrades the yt-dlp installation in place. Run at startup when
// UPDATE_YTDLP_ON_START is set; extractors rot quickly otherwise.
func SelfUpdate(ctx context.Context, timeout time.Duration) error {
	r := runner{timeout: timeout}
	logger := logx.FromCtx(ctx)
	logger.Info().Msg("updating yt-dlp")
	_, err := r.combined(ctx, "python3",
		"-m", "pip", "install", "--upgrade",
		"git+https://github.com/yt-dlp/yt-dlp.git@release")
	if err != nil {
		return fmt.Errorf("yt-dlp self-update: %w", err)
	}
	return nil
}
