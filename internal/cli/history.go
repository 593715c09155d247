package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Raikerian/narrmix/internal/reportstore"
)

var errHistoryDisabled = errors.New("run history is disabled; set report.database_path in the configuration")

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently processed units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var store *reportstore.Store
			return ctx.run(cmd, ctx.source(cmd), func(runCtx context.Context) error {
				if !store.Enabled() {
					return errHistoryDisabled
				}
				runs, err := store.Recent(runCtx, limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
					return err
				}

				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						run.Created().Local().Format(time.DateTime),
						run.UnitID,
						run.Status,
						run.Strategy,
						run.Verdict,
						fmt.Sprintf("%.3fs", run.FinalMS/1000),
						formatMS(run.DiffMS),
						run.Output,
					})
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"When", "Unit", "Status", "Strategy", "Verdict", "Duration", "Diff", "Output"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return err
			}, fx.Populate(&store))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}
