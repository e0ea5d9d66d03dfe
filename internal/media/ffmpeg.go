package media

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BrianAllred/TelegramVideoBot/internal/compress"
)

// Transcoder re-encodes videos with ffmpeg to fit the delivery budget.
type Transcoder struct {
	run runner
}

func NewTranscoder(timeout time.Duration) *Transcoder {
	return &Transcoder{run: runner{timeout: timeout}}
}

// BuildTranscodeArgs builds the ffmpeg invocation: hardware acceleration when
// available, the computed bitrates with a maxrate/VBV cap to bound overshoot,
// and a fast-start layout so the result streams progressively.
func BuildTranscodeArgs(src, dst string, p compress.Params) []string {
	return []string{
		"-y",
		"-hwaccel", "auto",
		"-i", src,
		"-b:v", fmt.Sprintf("%dk", p.VideoBitrateKbps),
		"-maxrate:v", fmt.Sprintf("%dk", p.MaxrateKbps),
		"-bufsize:v", strconv.FormatInt(p.BufSizeBits, 10),
		"-b:a", fmt.Sprintf("%dk", p.AudioBitrateKbps),
		"-movflags", "+faststart",
		dst,
	}
}

// Transcode writes a re-encoded copy of src to dst. On failure the partial
// dst is removed; src is left untouched either way.
func (t *Transcoder) Transcode(ctx context.Context, src, dst string, p compress.Params) error {
	if _, err := t.run.combined(ctx, "ffmpeg", BuildTranscodeArgs(src, dst, p)...); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("transcode %s: %w", src, err)
	}
	return nil
}
