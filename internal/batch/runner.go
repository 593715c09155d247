package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/internal/cache"
	"github.com/Raikerian/narrmix/internal/codec"
	"github.com/Raikerian/narrmix/internal/pipeline"
	"github.com/Raikerian/narrmix/internal/reportstore"
)

// LockName is the lock file created in the output directory for the length
// of a batch.
const LockName = ".narrmix.lock"

// exportDriftLimit is the container duration drift tolerated after encoding.
const exportDriftLimit = 10 * time.Millisecond

// Status is the final state of a job.
type Status string

const (
	StatusDone      Status = reportstore.StatusDone
	StatusFailed    Status = reportstore.StatusFailed
	StatusCancelled Status = reportstore.StatusCancelled
)

// Processor runs the stage sequence for one unit.
type Processor interface {
	Process(ctx context.Context, unit pipeline.Unit) (*pipeline.Result, error)
}

// Files decodes, encodes and probes audio files.
type Files interface {
	codec.Decoder
	codec.Encoder
	codec.Prober
}

// Recorder persists finished jobs.
type Recorder interface {
	Record(ctx context.Context, run reportstore.Run) error
}

// Options configure a Runner.
type Options struct {
	Concurrency int
	WorkDir     string
	OutputDir   string
	SampleRate  int
	Channels    int
}

// Outcome is the result of one job.
type Outcome struct {
	Job    Job
	Status Status
	// Output is where the track was or would have been written.
	Output      string
	Result      *pipeline.Result
	Err         error
	MusicCached bool
	Elapsed     time.Duration
}

// Summary collects the outcomes of a batch in job order.
type Summary struct {
	Outcomes []Outcome
	Elapsed  time.Duration
}

// Count returns the number of outcomes with status s.
func (s Summary) Count(status Status) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// OK reports whether every job finished.
func (s Summary) OK() bool {
	return s.Count(StatusDone) == len(s.Outcomes)
}

// Runner executes jobs on a bounded worker pool.
type Runner struct {
	opts      Options
	processor Processor
	files     Files
	clips     *cache.ClipCache
	recorder  Recorder
	logger    *zap.Logger

	mu   sync.Mutex
	lock *flock.Flock
}

// NewRunnerWith creates a runner from explicit collaborators. recorder may
// be nil.
func NewRunnerWith(opts Options, p Processor, files Files, clips *cache.ClipCache, recorder Recorder, logger *zap.Logger) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Runner{
		opts:      opts,
		processor: p,
		files:     files,
		clips:     clips,
		recorder:  recorder,
		logger:    logger,
	}
}

// Options returns the runner options.
func (r *Runner) Options() Options { return r.opts }

// RunBatch runs every job and reports each outcome. A failing job never stops
// the others. Once ctx is cancelled, jobs that have not started are reported
// as cancelled. The only error returned is failure to take the output lock.
func (r *Runner) RunBatch(ctx context.Context, jobs []Job) (Summary, error) {
	start := time.Now()
	if err := r.acquire(); err != nil {
		return Summary{}, err
	}
	defer r.release()

	r.logger.Info("Starting batch",
		zap.Int("jobs", len(jobs)),
		zap.Int("concurrency", r.opts.Concurrency),
		zap.String("output_dir", r.opts.OutputDir))

	outcomes := make([]Outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			outcomes[i] = r.cancelled(ctx, job, err)
			continue
		}
		g.Go(func() error {
			outcomes[i] = r.runOne(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{Outcomes: outcomes, Elapsed: time.Since(start)}
	r.logger.Info("Batch finished",
		zap.Int("done", summary.Count(StatusDone)),
		zap.Int("failed", summary.Count(StatusFailed)),
		zap.Int("cancelled", summary.Count(StatusCancelled)),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (r *Runner) runOne(ctx context.Context, job Job) (out Outcome) {
	start := time.Now()
	out = Outcome{Job: job, Output: r.outputPath(job)}
	logger := r.logger.With(zap.String("unit_id", job.ID))

	defer func() {
		out.Elapsed = time.Since(start)
		r.record(context.WithoutCancel(ctx), out, logger)
	}()

	if err := ctx.Err(); err != nil {
		out.Status, out.Err = StatusCancelled, err
		return out
	}
	// A started unit runs to completion; cancellation only stops new units.
	ctx = context.WithoutCancel(ctx)

	if err := out.Job.Validate(); err != nil {
		return r.failed(out, logger, err)
	}
	out.Output = r.outputPath(out.Job)

	workDir, err := r.scratch()
	if err != nil {
		return r.failed(out, logger, err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("Failed to remove work directory", zap.String("path", workDir), zap.Error(err))
		}
	}()

	narration, err := r.files.Decode(ctx, job.Narration)
	if err != nil {
		return r.failed(out, logger, err)
	}
	narration = narration.Conform(r.opts.SampleRate, r.opts.Channels)

	music, hit, err := r.clips.GetOrLoad(ctx, job.Music, r.files.Decode)
	if err != nil {
		return r.failed(out, logger, err)
	}
	out.MusicCached = hit

	res, err := r.processor.Process(ctx, pipeline.Unit{
		ID:        out.Job.ID,
		Narration: narration,
		Music:     music,
		Target:    out.Job.Target,
	})
	out.Result = res
	if err != nil {
		return r.failed(out, logger, err)
	}

	staged := filepath.Join(workDir, filepath.Base(out.Output))
	if err := r.files.Encode(ctx, res.Clip, staged); err != nil {
		return r.failed(out, logger, err)
	}
	r.checkExport(ctx, staged, res, logger)

	if err := publish(staged, out.Output); err != nil {
		return r.failed(out, logger, apperrors.IOFailure(err, "publish %s", out.Output).WithStage("export"))
	}

	out.Status = StatusDone
	logger.Info("Job finished",
		zap.String("output", out.Output),
		zap.Bool("music_cached", hit),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("elapsed", time.Since(start)))
	return out
}

// checkExport probes lossy containers and warns when encoder padding moved
// the duration past the export limit.
func (r *Runner) checkExport(ctx context.Context, path string, res *pipeline.Result, logger *zap.Logger) {
	if codec.IsWAV(path) {
		return
	}
	got, err := r.files.Probe(ctx, path)
	if err != nil {
		res.Warnings = append(res.Warnings, pipeline.Warning{
			Code:    apperrors.CodeIOFailure,
			Stage:   "export",
			Message: fmt.Sprintf("probe exported file: %v", err),
		})
		logger.Warn("Could not probe exported file", zap.Error(err))
		return
	}
	drift := got - res.FinalDuration
	if drift.Abs() > exportDriftLimit {
		res.Warnings = append(res.Warnings, pipeline.Warning{
			Code:    apperrors.CodeQualityDegraded,
			Stage:   "export",
			Message: fmt.Sprintf("exported duration %s differs from %s by %s", got, res.FinalDuration, drift),
		})
		logger.Warn("Exported duration drifted",
			zap.Duration("exported", got),
			zap.Duration("expected", res.FinalDuration),
			zap.Duration("drift", drift))
	}
}

func (r *Runner) failed(out Outcome, logger *zap.Logger, err error) Outcome {
	out.Status, out.Err = StatusFailed, err
	logger.Error("Job failed", zap.String("code", apperrors.CodeOf(err).String()), zap.Error(err))
	return out
}

func (r *Runner) cancelled(ctx context.Context, job Job, err error) Outcome {
	out := Outcome{Job: job, Output: r.outputPath(job), Status: StatusCancelled, Err: err}
	r.record(context.WithoutCancel(ctx), out, r.logger.With(zap.String("unit_id", job.ID)))
	return out
}

func (r *Runner) record(ctx context.Context, out Outcome, logger *zap.Logger) {
	if r.recorder == nil {
		return
	}
	run := reportstore.Run{
		UnitID:    out.Job.ID,
		Narration: out.Job.Narration,
		Music:     out.Job.Music,
		Output:    out.Output,
		Status:    string(out.Status),
	}
	if out.Err != nil {
		run.Error = out.Err.Error()
	}
	if res := out.Result; res != nil {
		run.Strategy = res.Strategy
		run.Verdict = string(res.Quality.Verdict)
		run.QualityRatio = res.Quality.Ratio
		run.FinalMS = ms(res.FinalDuration)
		run.TargetMS = ms(res.TargetDuration)
		run.DiffMS = ms(res.Difference)
		warnings := make([]string, len(res.Warnings))
		for i, w := range res.Warnings {
			warnings[i] = w.String()
		}
		run.Warnings = strings.Join(warnings, "\n")
	}
	if err := r.recorder.Record(ctx, run); err != nil {
		logger.Warn("Failed to record run", zap.Error(err))
	}
}

func (r *Runner) outputPath(job Job) string {
	if job.Output == "" || filepath.IsAbs(job.Output) {
		return job.Output
	}
	return filepath.Join(r.opts.OutputDir, job.Output)
}

// scratch creates the per-unit work directory.
func (r *Runner) scratch() (string, error) {
	dir := filepath.Join(r.opts.WorkDir, "narrmix-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", apperrors.IOFailure(err, "create work directory").WithStage("batch")
	}
	return dir, nil
}

func (r *Runner) acquire() error {
	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return apperrors.IOFailure(err, "create output directory %s", r.opts.OutputDir).WithStage("batch")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lock == nil {
		r.lock = flock.New(filepath.Join(r.opts.OutputDir, LockName))
	}
	ok, err := r.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire output lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("output directory %s is in use by another run", r.opts.OutputDir)
	}
	return nil
}

func (r *Runner) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lock == nil || !r.lock.Locked() {
		return
	}
	if err := r.lock.Unlock(); err != nil {
		r.logger.Warn("Failed to release output lock", zap.Error(err))
	}
}

// Close releases the output lock if a batch still holds it.
func (r *Runner) Close() error {
	r.release()
	return nil
}

// publish moves src to dst. When a plain rename is not possible the file is
// copied into dst's directory first, so dst only ever appears complete.
func publish(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src) // #nosec G304 -- src is inside our own work directory
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".narrmix-*"+filepath.Ext(dst))
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
