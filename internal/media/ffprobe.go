package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Info is what the pipeline needs to know about a downloaded file: the
// duration feeds the compression policy, the dimensions feed delivery.
type Info struct {
	DurationSeconds float64
	Width           int
	Height          int
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

// Prober inspects media files via ffprobe.
type Prober struct {
	run runner
}

func NewProber(timeout time.Duration) *Prober {
	return &Prober{run: runner{timeout: timeout}}
}

func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	raw, err := p.run.stdout(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return Info{}, fmt.Errorf("probe %s: %w", path, err)
	}

	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Info{}, fmt.Errorf("probe %s: decode output: %w", path, err)
	}

	var info Info
	if out.Format.Duration != "" {
		info.DurationSeconds, err = strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return Info{}, fmt.Errorf("probe %s: parse duration %q: %w", path, out.Format.Duration, err)
		}
	}
	for _, s := range out.Streams {
		// first video stream wins
		if s.CodecType == "video" {
			info.Width = s.Width
			info.Height = s.Height
			break
		}
	}
	return info, nil
}
