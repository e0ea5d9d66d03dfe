// Package pipeline runs one download request end to end: fetch the video,
// inspect it, squeeze it under the upload ceiling when needed, deliver it,
// and clean up the working file no matter what happened.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BrianAllred/TelegramVideoBot/internal/compress"
	"github.com/BrianAllred/TelegramVideoBot/internal/logx"
	"github.com/BrianAllred/TelegramVideoBot/internal/media"
	"github.com/BrianAllred/TelegramVideoBot/internal/queue"
)

// CanonicalExt is the container Telegram accepts without further conversion.
const CanonicalExt = ".mp4"

// Outcome classifies how a run ended; it only selects the terminal reply.
type Outcome int

const (
	Delivered Outcome = iota
	UnsupportedSource
	DownloadFailure
	CompressionFailure
)

// Fetcher downloads a URL into the working directory under the user's
// file-naming pattern.
type Fetcher interface {
	Fetch(ctx context.Context, userID int64, url string) error
}

// Prober reports duration and dimensions of a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Info, error)
}

// Transcoder re-encodes src into dst according to the computed plan.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string, p compress.Params) error
}

// Delivery is the chat client boundary. Text is MarkdownV2.
type Delivery interface {
	SendText(ctx context.Context, chatID int64, text string, replyID int) error
	SendVideo(ctx context.Context, chatID int64, video io.Reader, name string, replyID, width, height int) error
}

// Executor drives the fetch→inspect→transcode→deliver→cleanup sequence for a
// single request. One instance serves all users; per-user serialization is
// the queue's job.
type Executor struct {
	dir        string
	limitBytes int64
	fetcher    Fetcher
	prober     Prober
	transcoder Transcoder
	delivery   Delivery
}

func New(dir string, limitBytes int64, f Fetcher, p Prober, t Transcoder, d Delivery) *Executor {
	return &Executor{
		dir:        dir,
		limitBytes: limitBytes,
		fetcher:    f,
		prober:     p,
		transcoder: t,
		delivery:   d,
	}
}

// Run executes the request and reports the terminal status via chat. It
// satisfies queue.RunFunc: errors never escape, so one bad job cannot abort
// the drain of the jobs queued behind it.
func (e *Executor) Run(ctx context.Context, userID int64, req queue.Request) {
	ctx = logx.WithJob(ctx, userID, req.ID, req.URL)
	logger := logx.FromCtx(ctx)
	start := time.Now()

	outcome, err := e.execute(ctx, userID, req)
	switch outcome {
	case Delivered:
		logger.Info().Dur("took", time.Since(start)).Msg("video delivered")
		return
	case UnsupportedSource:
		logger.Warn().Msg("unsupported source url")
		e.reply(ctx, req, unsupportedReply())
	case CompressionFailure:
		logger.Error().Err(err).Msg("compression failed")
		e.reply(ctx, req, compressionFailedReply(req.URL))
	default:
		logger.Error().Err(err).Msg("download failed")
		e.reply(ctx, req, downloadFailedReply(req.URL))
	}
}

func (e *Executor) execute(ctx context.Context, userID int64, req queue.Request) (Outcome, error) {
	// A previous run should have cleaned up after itself, but a crash mid-run
	// leaves the file behind; removal here keeps the run idempotent.
	e.removeWorkingFiles(userID)

	if err := e.fetcher.Fetch(ctx, userID, req.URL); err != nil {
		if errors.Is(err, media.ErrUnsupportedSource) {
			// yt-dlp wrote no file; there is nothing to clean up or deliver.
			return UnsupportedSource, err
		}
		return DownloadFailure, err
	}

	path, ok := e.findWorkingFile(userID)
	if !ok {
		return DownloadFailure, fmt.Errorf("pipeline: no working file for user %d after fetch", userID)
	}
	// From here the working file exists and must not outlive the run.
	defer e.removeWorkingFiles(userID)

	info, err := e.prober.Probe(ctx, path)
	if err != nil {
		return DownloadFailure, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return DownloadFailure, err
	}

	switch {
	case st.Size() > e.limitBytes:
		e.reply(ctx, req, compressingNotice(req.URL, e.limitBytes))
		if path, err = e.transcodeInPlace(ctx, path, info); err != nil {
			return CompressionFailure, err
		}
	case !strings.EqualFold(filepath.Ext(path), CanonicalExt):
		e.reply(ctx, req, convertingNotice(req.URL))
		if path, err = e.transcodeInPlace(ctx, path, info); err != nil {
			return CompressionFailure, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return DownloadFailure, err
	}
	defer f.Close()

	if err := e.delivery.SendVideo(ctx, req.ChatID, f, filepath.Base(path), req.ReplyID, info.Width, info.Height); err != nil {
		return DownloadFailure, fmt.Errorf("deliver %s: %w", req.URL, err)
	}
	return Delivered, nil
}

// transcodeInPlace re-encodes path to the target budget and atomically
// replaces it, returning the new path with the canonical extension. On
// failure the original is left for the deferred cleanup.
func (e *Executor) transcodeInPlace(ctx context.Context, path string, info media.Info) (string, error) {
	plan, err := compress.Plan(compress.TargetBytes(e.limitBytes), info.DurationSeconds)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	tmp := base + ".transcode" + CanonicalExt
	if err := e.transcoder.Transcode(ctx, path, tmp, plan); err != nil {
		return "", err
	}

	final := base + CanonicalExt
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("replace %s: %w", path, err)
	}
	if path != final {
		_ = os.Remove(path)
	}
	return final, nil
}

// findWorkingFile locates the file yt-dlp produced for this user. Exactly one
// match is expected; the pre-clean removed anything stale.
func (e *Executor) findWorkingFile(userID int64) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(e.dir, fmt.Sprintf("%d.*", userID)))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// removeWorkingFiles best-effort deletes every file under the user's naming
// pattern. Working files can collide across sequential runs for the same
// user, never across users.
func (e *Executor) removeWorkingFiles(userID int64) {
	matches, err := filepath.Glob(filepath.Join(e.dir, fmt.Sprintf("%d.*", userID)))
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

func (e *Executor) reply(ctx context.Context, req queue.Request, text string) {
	if err := e.delivery.SendText(ctx, req.ChatID, text, req.ReplyID); err != nil {
		logger := logx.FromCtx(ctx)
		logger.Error().Err(err).Msg("sending reply failed")
	}
}
