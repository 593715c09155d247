// Package quality compares a processed clip against its source by loudness.
package quality

import (
	"fmt"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/pkg/audio"
)

// Verdict is the advisory outcome of a loudness comparison.
type Verdict string

const (
	Pass     Verdict = "pass"
	Degraded Verdict = "degraded"
)

// Bounds is the accepted processed/source RMS ratio window.
type Bounds struct {
	Low  float64
	High float64
}

// DefaultBounds accepts up to 20% loudness drift either way.
var DefaultBounds = Bounds{Low: 0.8, High: 1.2}

// Validate requires 0 < Low <= 1 <= High.
func (b Bounds) Validate() error {
	if b.Low <= 0 || b.Low > 1 || b.High < 1 {
		return apperrors.InvalidParameter("quality bounds must satisfy 0 < low <= 1 <= high, got [%v, %v]", b.Low, b.High)
	}
	return nil
}

// Contains reports whether ratio falls inside the window, inclusive.
func (b Bounds) Contains(ratio float64) bool {
	return ratio >= b.Low && ratio <= b.High
}

// Report carries the measured levels and the verdict.
type Report struct {
	SourceRMS    float64
	ProcessedRMS float64
	Ratio        float64
	Verdict      Verdict
}

// Passed reports whether the verdict is Pass.
func (r Report) Passed() bool { return r.Verdict == Pass }

// Err returns a QualityDegraded error for a degraded report, nil otherwise.
func (r Report) Err() error {
	if r.Passed() {
		return nil
	}
	return apperrors.QualityDegraded("rms ratio %.3f outside bounds", r.Ratio).WithStage("verify")
}

func (r Report) String() string {
	return fmt.Sprintf("%s (ratio %.3f, source %.4f, processed %.4f)", r.Verdict, r.Ratio, r.SourceRMS, r.ProcessedRMS)
}

// Verify compares processed against source. A silent source always passes
// with ratio 1. Verify never fails; the report is advisory.
func Verify(source, processed audio.Clip, bounds Bounds) Report {
	r := Report{
		SourceRMS:    source.RMS(),
		ProcessedRMS: processed.RMS(),
	}

	if r.SourceRMS == 0 {
		r.Ratio = 1
		r.Verdict = Pass
		return r
	}

	r.Ratio = r.ProcessedRMS / r.SourceRMS
	if bounds.Contains(r.Ratio) {
		r.Verdict = Pass
	} else {
		r.Verdict = Degraded
	}
	return r
}
