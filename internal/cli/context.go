package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Raikerian/narrmix/internal/app"
	"github.com/Raikerian/narrmix/internal/config"
)

// commandContext carries the global flags shared by every subcommand.
type commandContext struct {
	configPath string
	logLevel   string

	speed         float64
	preservePitch bool
	enhance       bool
	narrationDB   float64
	musicDB       float64
	toleranceMS   float64
	fatalMS       float64
	concurrency   int
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) bindFlags(root *cobra.Command) {
	defaults := config.Default()
	flags := root.PersistentFlags()

	flags.StringVarP(&c.configPath, "config", "c", "", "Configuration file path")
	flags.StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.Float64Var(&c.speed, "speed", defaults.Pipeline.SpeedFactor, "Narration speed factor; any value other than 1 enables speed adjustment")
	flags.BoolVar(&c.preservePitch, "preserve-pitch", defaults.Pipeline.PreservePitch, "Keep narration pitch when changing speed")
	flags.BoolVar(&c.enhance, "enhance", defaults.Pipeline.EnhancementEnabled, "Run compression and peak normalization after mixing")
	flags.Float64Var(&c.narrationDB, "narration-db", defaults.Pipeline.NarrationLevelDB, "Narration RMS level in dBFS")
	flags.Float64Var(&c.musicDB, "music-db", defaults.Pipeline.MusicLevelDB, "Music RMS level in dBFS")
	flags.Float64Var(&c.toleranceMS, "tolerance-ms", defaults.Pipeline.DurationToleranceMS, "Duration tolerance in milliseconds")
	flags.Float64Var(&c.fatalMS, "fatal-ms", defaults.Pipeline.DurationFatalThresholdMS, "Duration drift that fails a unit, in milliseconds")
	flags.IntVar(&c.concurrency, "concurrency", defaults.Batch.Concurrency, "Units processed in parallel")
}

// source turns the config flag and every explicitly set override into a
// config.Source. Flags left at their defaults do not mask the file.
func (c *commandContext) source(cmd *cobra.Command, extra ...func(*config.Config)) config.Source {
	flags := cmd.Flags()
	var overrides []func(*config.Config)
	set := func(name string, fn func(*config.Config)) {
		if flags.Changed(name) {
			overrides = append(overrides, fn)
		}
	}

	set("log-level", func(cfg *config.Config) { cfg.LogLevel = strings.ToLower(strings.TrimSpace(c.logLevel)) })
	set("speed", func(cfg *config.Config) {
		cfg.Pipeline.SpeedFactor = c.speed
		cfg.Pipeline.SpeedAdjustmentEnabled = c.speed != 1.0
	})
	set("preserve-pitch", func(cfg *config.Config) { cfg.Pipeline.PreservePitch = c.preservePitch })
	set("enhance", func(cfg *config.Config) { cfg.Pipeline.EnhancementEnabled = c.enhance })
	set("narration-db", func(cfg *config.Config) { cfg.Pipeline.NarrationLevelDB = c.narrationDB })
	set("music-db", func(cfg *config.Config) { cfg.Pipeline.MusicLevelDB = c.musicDB })
	set("tolerance-ms", func(cfg *config.Config) { cfg.Pipeline.DurationToleranceMS = c.toleranceMS })
	set("fatal-ms", func(cfg *config.Config) { cfg.Pipeline.DurationFatalThresholdMS = c.fatalMS })
	set("concurrency", func(cfg *config.Config) { cfg.Batch.Concurrency = c.concurrency })

	return config.Source{
		Path:      strings.TrimSpace(c.configPath),
		Overrides: append(overrides, extra...),
	}
}

// run builds the engine from src, populates what the command needs through
// opts and runs fn between start and stop.
func (c *commandContext) run(cmd *cobra.Command, src config.Source, fn func(context.Context) error, opts ...fx.Option) error {
	return app.New(src, opts...).Execute(cmd.Context(), fn)
}
