// Package compress computes the bitrate budget for squeezing a video under
// the delivery size ceiling.
package compress

import (
	"errors"
	"fmt"
)

// AudioBitrateKbps is fixed; only the video bitrate is derived from the budget.
const AudioBitrateKbps = 128

// ErrZeroDuration is returned for media whose duration cannot be measured.
// The policy is undefined there; callers must not transcode such files.
var ErrZeroDuration = errors.New("compress: source duration is zero or unknown")

// Params is a fully computed transcode plan.
type Params struct {
	VideoBitrateKbps int
	AudioBitrateKbps int
	// MaxrateKbps caps instantaneous video bitrate to bound overshoot.
	MaxrateKbps int
	// BufSizeBits is the VBV buffer: a 1/20-duration-equivalent window,
	// the usual single-pass substitute for two-pass rate control.
	BufSizeBits int64
}

// TargetBytes derives the transcode budget from the delivery ceiling,
// keeping a 10% safety margin (50 MB ceiling yields a 45 MB target).
func TargetBytes(limitBytes int64) int64 {
	return limitBytes - limitBytes/10
}

// Plan computes bitrates that land a durationSeconds-long video at
// targetBytes. The +1 rounds the total up so the plan never under-targets.
func Plan(targetBytes int64, durationSeconds float64) (Params, error) {
	if durationSeconds <= 0 {
		return Params{}, ErrZeroDuration
	}
	targetKilobits := targetBytes * 8 / 1000
	totalKbps := int(float64(targetKilobits)/durationSeconds) + 1
	videoKbps := totalKbps - AudioBitrateKbps
	if videoKbps <= 0 {
		return Params{}, fmt.Errorf("compress: budget %d bytes over %.1fs leaves no room for video", targetBytes, durationSeconds)
	}
	return Params{
		VideoBitrateKbps: videoKbps,
		AudioBitrateKbps: AudioBitrateKbps,
		MaxrateKbps:      videoKbps,
		BufSizeBits:      targetKilobits * 1000 / 20,
	}, nil
}
