// Package batch runs processing units from files on disk: it decodes the
// inputs, drives the pipeline on a bounded worker pool and publishes the
// exported tracks.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Raikerian/narrmix/internal/apperrors"
)

// Job describes one unit on disk.
type Job struct {
	ID        string        `yaml:"id"`
	Narration string        `yaml:"narration"`
	Music     string        `yaml:"music"`
	Output    string        `yaml:"output"`
	Target    time.Duration `yaml:"target"`
}

type jobFile struct {
	Jobs []Job `yaml:"jobs"`
}

// Validate fills defaults and checks required fields.
func (j *Job) Validate() error {
	if j.Narration == "" {
		return apperrors.InvalidParameter("job %q has no narration", j.ID).WithStage("batch")
	}
	if j.Music == "" {
		return apperrors.InvalidParameter("job %q has no music", j.ID).WithStage("batch")
	}
	if j.Target < 0 {
		return apperrors.InvalidParameter("job %q has negative target %s", j.ID, j.Target).WithStage("batch")
	}
	if j.ID == "" {
		j.ID = strings.TrimSuffix(filepath.Base(j.Narration), filepath.Ext(j.Narration))
	}
	if j.Output == "" {
		j.Output = j.ID + ".wav"
	}
	return nil
}

// LoadJobs reads a YAML job list. Relative input paths are resolved against
// the directory holding the job file; relative outputs are left for the
// runner to place in the output directory.
func LoadJobs(path string) ([]Job, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the command line
	if err != nil {
		return nil, apperrors.IOFailure(err, "read job file %s", path).WithStage("batch")
	}

	var file jobFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.InvalidParameter("parse job file %s: %v", path, err).WithStage("batch")
	}
	if len(file.Jobs) == 0 {
		return nil, apperrors.InvalidParameter("job file %s lists no jobs", path).WithStage("batch")
	}

	base := filepath.Dir(path)
	seen := make(map[string]bool, len(file.Jobs))
	for i := range file.Jobs {
		job := &file.Jobs[i]
		job.Narration = resolve(base, job.Narration)
		job.Music = resolve(base, job.Music)
		if err := job.Validate(); err != nil {
			return nil, err
		}
		if seen[job.ID] {
			return nil, apperrors.InvalidParameter("duplicate job id %q", job.ID).WithStage("batch")
		}
		seen[job.ID] = true
	}
	return file.Jobs, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func (j Job) String() string {
	return fmt.Sprintf("%s (%s + %s -> %s)", j.ID, j.Narration, j.Music, j.Output)
}
