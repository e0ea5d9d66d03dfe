package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrianAllred/TelegramVideoBot/internal/logx"
)

// runner invokes external tools with a hard per-invocation timeout. A hung
// yt-dlp or ffmpeg would otherwise stall its user's queue forever.
type runner struct {
	timeout time.Duration
}

// combined runs the tool and returns its combined stdout+stderr as one blob,
// streaming each line into the log at debug level as it arrives.
func (r runner) combined(ctx context.Context, name string, args ...string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger := logx.FromCtx(ctx)
	lw := logx.NewLineWriter(logger, name, zerolog.DebugLevel)

	var buf bytes.Buffer
	pr, pw := io.Pipe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lw.Pipe(pr)
	}()

	cmd := exec.CommandContext(ctx, name, args...)
	out := io.MultiWriter(&buf, pw)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	pw.Close()
	wg.Wait()

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return buf.String(), fmt.Errorf("%s timed out after %s: %w", name, r.timeout, ctx.Err())
		}
		return buf.String(), fmt.Errorf("%s: %w", name, err)
	}
	return buf.String(), nil
}

// stdout runs the tool and returns its stdout alone; stderr lines go to the
// log. Used for tools whose stdout is machine-readable (ffprobe JSON).
func (r runner) stdout(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger := logx.FromCtx(ctx)
	lw := logx.NewLineWriter(logger, name, zerolog.DebugLevel)

	var out bytes.Buffer
	pr, pw := io.Pipe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lw.Pipe(pr)
	}()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = pw

	err := cmd.Run()
	pw.Close()
	wg.Wait()

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %s: %w", name, r.timeout, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out.Bytes(), nil
}
