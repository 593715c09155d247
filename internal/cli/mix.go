package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Raikerian/narrmix/internal/batch"
	"github.com/Raikerian/narrmix/internal/config"
)

func newMixCommand(ctx *commandContext) *cobra.Command {
	var (
		narration string
		music     string
		out       string
		target    time.Duration
		id        string
	)

	cmd := &cobra.Command{
		Use:   "mix",
		Short: "Mix one narration over a music bed",
		Example: "  narrmix mix --narration story.mp3 --music bed.mp3 --out story-final.mp3 --target 27.273s\n" +
			"  narrmix mix --narration story.wav --music bed.wav --out final.wav --speed 1.1",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := filepath.Abs(out)
			if err != nil {
				return fmt.Errorf("resolve output path: %w", err)
			}
			if id == "" {
				id = strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))
			}

			job := batch.Job{
				ID:        id,
				Narration: narration,
				Music:     music,
				Output:    output,
				Target:    target,
			}
			if err := job.Validate(); err != nil {
				return err
			}

			// The output lock belongs to the directory the track is written to.
			return runJobs(cmd, ctx, []batch.Job{job}, func(cfg *config.Config) {
				cfg.Batch.OutputDir = filepath.Dir(output)
			})
		},
	}

	cmd.Flags().StringVar(&narration, "narration", "", "Narration audio file")
	cmd.Flags().StringVar(&music, "music", "", "Music bed audio file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file; the extension selects the container")
	cmd.Flags().DurationVar(&target, "target", 0, "Exact output duration; defaults to the narration length after the speed factor")
	cmd.Flags().StringVar(&id, "id", "", "Unit identifier used in logs and history")
	_ = cmd.MarkFlagRequired("narration")
	_ = cmd.MarkFlagRequired("music")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
