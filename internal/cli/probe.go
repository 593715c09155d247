package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Raikerian/narrmix/internal/codec"
	"github.com/Raikerian/narrmix/internal/config"
	"github.com/Raikerian/narrmix/internal/stretch"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report stretch strategies and external codec availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg    *config.Config
				engine *stretch.Engine
				codecs *codec.Registry
			)
			return ctx.run(cmd, ctx.source(cmd), func(runCtx context.Context) error {
				rows := make([][]string, 0, 4)
				for _, c := range engine.Capabilities() {
					rows = append(rows, []string{"stretch", c.Name, yesNo(c.Available), ""})
				}

				ff := codecs.FFmpeg()
				detail := cfg.Audio.FFmpegPath + ", " + cfg.Audio.FFprobePath
				available := ff.Available()
				if available {
					if version, err := ff.Version(runCtx); err == nil {
						detail = version
					}
				}
				rows = append(rows, []string{"codec", "wav", "yes", fmt.Sprintf("%d-bit PCM", cfg.Audio.BitDepth)})
				rows = append(rows, []string{"codec", ff.Name(), yesNo(available), detail})

				_, err := fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Kind", "Name", "Available", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return err
			}, fx.Populate(&cfg, &engine, &codecs))
		},
	}
}
