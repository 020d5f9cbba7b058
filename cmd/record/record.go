// Package record implements the record command.
package record

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/shmaudio/internal/app"
	"github.com/tphakala/shmaudio/internal/audiocore/stream"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/logger"
	levels "github.com/tphakala/shmaudio/internal/monitor"
	"github.com/tphakala/shmaudio/internal/observability/metrics"
)

// Command creates the record command.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the input device into a shared ring buffer",
		Long: "Record a fixed duration from the input device. Other processes can follow the " +
			"recording with 'shmaudio monitor <region>' while it runs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("device", "", "Input device name, ID or substring")
	flags.Int("device-channels", 0, "Input channels the device offers")
	flags.IntSlice("channelmap", nil, "1-based device channels to record")
	flags.Duration("duration", 0, "Recording length")
	flags.String("region", "", "Shared region name, empty generates one")
	flags.String("logpath", "", "Level monitor log file")
	for key, name := range map[string]string{
		"recorder.device":          "device",
		"recorder.device_channels": "device-channels",
		"recorder.channelmap":      "channelmap",
		"recorder.duration":        "duration",
		"recorder.region":          "region",
		"monitor.logpath":          "logpath",
	} {
		ctx.Bind(key, name)
	}
	return cmd
}

func run(cmd *cobra.Command, ctx *app.Context) error {
	s := ctx.Settings
	log := logger.Global().Module("record")

	backend, err := ctx.Backend()
	if err != nil {
		return err
	}
	cfg, err := stream.RecorderConfig(s)
	if err != nil {
		return err
	}
	rec, err := stream.NewRecorder(cfg, backend,
		stream.WithLogger(logger.Global().Module("stream")),
		stream.WithMetrics(ctx.StreamMetrics(metrics.KindRecorder)))
	if err != nil {
		return err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			log.Warn("failed to close recorder", logger.Error(err))
		}
	}()
	log.Info("recording",
		logger.String("region", rec.RegionName()),
		logger.Duration("duration", s.Recorder.Duration))

	var mon *levels.Monitor
	if s.Monitor.Enabled {
		if mon, err = ctx.LevelMonitor("recorder", s.Monitor.LogPath); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(cmd.Context())
	telemetryCtx, stopTelemetry := context.WithCancel(gctx)
	defer stopTelemetry()
	g.Go(func() error { return ctx.ServeTelemetry(telemetryCtx) })

	if mon != nil {
		g.Go(func() error { return mon.Run(gctx, rec) })
	}

	g.Go(func() error {
		defer stopTelemetry()
		audio, status, err := rec.Run(gctx, s.RecordFrames())
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		app.Report(cmd.OutOrStdout(), "recorder", audio, status, s.Monitor.Reference)
		return nil
	})
	return g.Wait()
}
