package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/internal/mix"
	"github.com/Raikerian/narrmix/internal/quality"
	"github.com/Raikerian/narrmix/pkg/audio"
)

// State is a step of the per-unit state machine.
type State string

const (
	Received   State = "received"
	Stretched  State = "stretched"
	Verified   State = "verified"
	Mixed      State = "mixed"
	Enhanced   State = "enhanced"
	Reconciled State = "reconciled"
	Done       State = "done"
	Failed     State = "failed"
)

// Unit is one narration to process.
type Unit struct {
	ID        string
	Narration audio.Clip
	Music     audio.Clip
	// Target is the duration expected by the video timeline. Zero means the
	// narration duration after the speed factor.
	Target time.Duration
}

// Warning is a recoverable condition recorded on a result.
type Warning struct {
	Code    apperrors.Code
	Stage   string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s: %s", w.Code, w.Stage, w.Message)
}

// warningFrom converts an engine error into a warning.
func warningFrom(stage string, err error) Warning {
	w := Warning{Code: apperrors.CodeOf(err), Stage: stage, Message: err.Error()}
	var e *apperrors.Error
	if errors.As(err, &e) {
		if e.Stage != "" {
			w.Stage = e.Stage
		}
		w.Message = e.Message
		if e.Err != nil {
			w.Message += ": " + e.Err.Error()
		}
	}
	return w
}

// Result is the outcome of one unit.
type Result struct {
	UnitID   string
	Clip     audio.Clip
	Quality  quality.Report
	Warnings []Warning
	// Strategy is the stretch strategy used, "none" when no stretch ran.
	Strategy string
	MixStats mix.Stats
	History  []State

	FinalDuration  time.Duration
	TargetDuration time.Duration
	Difference     time.Duration
}

// State returns the last state reached.
func (r *Result) State() State {
	if len(r.History) == 0 {
		return ""
	}
	return r.History[len(r.History)-1]
}

// Reached reports whether s appears in the history.
func (r *Result) Reached(s State) bool {
	for _, h := range r.History {
		if h == s {
			return true
		}
	}
	return false
}

func (r *Result) enter(s State) {
	r.History = append(r.History, s)
}

func (r *Result) warn(w Warning) {
	r.Warnings = append(r.Warnings, w)
}
