// Package reconcile forces a clip to an exact target duration by trimming or
// padding its tail.
package reconcile

import (
	"time"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/pkg/audio"
)

// Tolerance bounds acceptable drift.
type Tolerance struct {
	// Max is the drift accepted without any change.
	Max time.Duration
	// Fatal is the drift beyond which correction is refused. Zero disables it.
	Fatal time.Duration
}

// DefaultTolerance is 1 ms with a 300 ms ceiling.
var DefaultTolerance = Tolerance{Max: time.Millisecond, Fatal: 300 * time.Millisecond}

// Action is what Reconcile did to the clip.
type Action string

const (
	Unchanged Action = "unchanged"
	Trimmed   Action = "trimmed"
	Padded    Action = "padded"
)

// Outcome describes one reconciliation.
type Outcome struct {
	Action Action
	// Before is produced minus target; positive means the clip was long.
	Before time.Duration
	// After is the drift left after correction.
	After time.Duration
	// Frames is the number of frames trimmed or padded.
	Frames int
}

// Reconcile returns clip at target duration. Drift within tol.Max is left
// alone. Drift beyond tol.Fatal fails with DurationMismatchFatal. Otherwise
// the tail is trimmed, or padded with silence, to round(target*rate) frames.
// Reconcile is idempotent.
func Reconcile(clip audio.Clip, target time.Duration, tol Tolerance) (audio.Clip, Outcome, error) {
	if target < 0 {
		return audio.Clip{}, Outcome{}, apperrors.InvalidParameter("negative target duration %s", target).WithStage("reconcile")
	}
	if tol.Max <= 0 {
		return audio.Clip{}, Outcome{}, apperrors.InvalidParameter("tolerance must be positive, got %s", tol.Max).WithStage("reconcile")
	}

	diff := clip.Duration() - target
	outcome := Outcome{Action: Unchanged, Before: diff, After: diff}

	if abs(diff) <= tol.Max {
		return clip, outcome, nil
	}
	if tol.Fatal > 0 && abs(diff) > tol.Fatal {
		return audio.Clip{}, outcome, apperrors.DurationMismatchFatal(
			"produced %s, target %s, difference %s exceeds %s",
			clip.Duration(), target, diff, tol.Fatal).WithStage("reconcile")
	}

	frames := audio.FramesFor(target, clip.SampleRate())
	var out audio.Clip
	switch {
	case clip.Frames() > frames:
		out = clip.Slice(0, frames)
		outcome.Action = Trimmed
		outcome.Frames = clip.Frames() - frames
	case clip.Frames() < frames:
		out = clip.PadTo(frames)
		outcome.Action = Padded
		outcome.Frames = frames - clip.Frames()
	default:
		// Already at the nearest frame; the residue is sub-frame rounding.
		out = clip
	}

	outcome.After = out.Duration() - target
	return out, outcome, nil
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
