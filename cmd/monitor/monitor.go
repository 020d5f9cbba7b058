// Package monitor implements the monitor command, which follows a stream
// running in another process through its shared region.
package monitor

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/shmaudio/internal/app"
	"github.com/tphakala/shmaudio/internal/logger"
	levels "github.com/tphakala/shmaudio/internal/monitor"
)

// Command creates the monitor command.
func Command(ctx *app.Context) *cobra.Command {
	var playback bool
	cmd := &cobra.Command{
		Use:   "monitor <region>",
		Short: "Log the levels of a stream running in another process",
		Long: "Attach to the shared region of a running recorder or player and log the level " +
			"of each chunk until the stream finishes.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx, args[0], playback)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&playback, "playback", false, "The region belongs to a player")
	flags.Duration("interval", 0, "Monitor period")
	flags.String("logpath", "", "Level monitor log file")
	ctx.Bind("monitor.interval", "interval")
	ctx.Bind("monitor.logpath", "logpath")
	return cmd
}

func run(cmd *cobra.Command, ctx *app.Context, region string, playback bool) error {
	log := logger.Global().Module("monitor").With(logger.String("region", region))

	obs, err := levels.Observe(region, playback)
	if err != nil {
		return err
	}
	defer func() {
		if err := obs.Close(); err != nil {
			log.Warn("failed to detach region", logger.Error(err))
		}
	}()

	mon, err := ctx.LevelMonitor(region, ctx.Settings.Monitor.LogPath)
	if err != nil {
		return err
	}
	log.Info("monitoring", logger.String("logpath", ctx.Settings.Monitor.LogPath))
	if err := mon.Run(cmd.Context(), obs); err != nil {
		return err
	}
	log.Info("monitor finished", logger.Int("ticks", mon.Ticks()))
	return nil
}
