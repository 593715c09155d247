package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Raikerian/narrmix/internal/batch"
	"github.com/Raikerian/narrmix/internal/config"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "batch JOBS.yaml",
		Short: "Process every job listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := batch.LoadJobs(args[0])
			if err != nil {
				return err
			}
			return runJobs(cmd, ctx, jobs)
		},
	}
}

// runJobs runs jobs through the batch runner and prints the summary. It
// fails when any job did not finish.
func runJobs(cmd *cobra.Command, ctx *commandContext, jobs []batch.Job, extra ...func(*config.Config)) error {
	var runner *batch.Runner
	var summary batch.Summary

	err := ctx.run(cmd, ctx.source(cmd, extra...), func(runCtx context.Context) error {
		var err error
		summary, err = runner.RunBatch(runCtx, jobs)
		return err
	}, fx.Populate(&runner))
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), summary)

	if !summary.OK() {
		return fmt.Errorf("%d of %d jobs did not finish", len(summary.Outcomes)-summary.Count(batch.StatusDone), len(summary.Outcomes))
	}
	return nil
}

func printSummary(w io.Writer, summary batch.Summary) {
	headers := []string{"Job", "Status", "Strategy", "Verdict", "Duration", "Target", "Diff", "Warnings", "Output"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(summary.Outcomes))
	for _, o := range summary.Outcomes {
		row := []string{o.Job.ID, string(o.Status), "", "", "", "", "", "", o.Output}
		if res := o.Result; res != nil {
			row[2] = res.Strategy
			row[3] = string(res.Quality.Verdict)
			row[4] = formatSeconds(res.FinalDuration)
			row[5] = formatSeconds(res.TargetDuration)
			row[6] = formatMS(float64(res.Difference) / float64(time.Millisecond))
			row[7] = strconv.Itoa(len(res.Warnings))
		}
		if o.Err != nil {
			row[8] = o.Err.Error()
		}
		rows = append(rows, row)
	}

	_, _ = fmt.Fprintln(w, renderTable(headers, rows, aligns))
	_, _ = fmt.Fprintf(w, "%d done, %d failed, %d cancelled in %s\n",
		summary.Count(batch.StatusDone),
		summary.Count(batch.StatusFailed),
		summary.Count(batch.StatusCancelled),
		summary.Elapsed.Round(time.Millisecond))

	for _, o := range summary.Outcomes {
		if o.Result == nil {
			continue
		}
		for _, warning := range o.Result.Warnings {
			_, _ = fmt.Fprintf(w, "%s: %s\n", o.Job.ID, warning)
		}
	}
}
