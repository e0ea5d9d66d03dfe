package logx

import (
	"bufio"
	"io"

	"github.com/rs/zerolog"
)

// LineWriter turns stream output into per-line zerolog events at a given level.
// External tools (yt-dlp, ffmpeg) write multi-line progress chatter; piping it
// through here keeps operator logs structured instead of interleaved raw text.
type LineWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func NewLineWriter(logger zerolog.Logger, tool string, level zerolog.Level) *LineWriter {
	return &LineWriter{logger: logger.With().Str("tool", tool).Logger(), level: level}
}

func (lw *LineWriter) Pipe(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		switch lw.level {
		case zerolog.DebugLevel:
			lw.logger.Debug().Msg(sc.Text())
		case zerolog.ErrorLevel:
			lw.logger.Error().Msg(sc.Text())
		default:
			lw.logger.Info().Msg(sc.Text())
		}
	}
	// The scanner bails on lines over its cap. The writing side blocks until
	// this reader reaches EOF, so keep consuming whatever is left.
	if err := sc.Err(); err != nil {
		lw.logger.Warn().Err(err).Msg("line scan aborted, draining rest of stream")
		_, _ = io.Copy(io.Discard, r)
	}
}
