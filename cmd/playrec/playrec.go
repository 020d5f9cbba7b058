// Package playrec implements the playrec command, which plays a test signal
// and records the input at the same time.
package playrec

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/shmaudio/cmd/play"
	"github.com/tphakala/shmaudio/internal/app"
	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/audiocore/generator"
	"github.com/tphakala/shmaudio/internal/audiocore/stream"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/logger"
	levels "github.com/tphakala/shmaudio/internal/monitor"
	"github.com/tphakala/shmaudio/internal/observability/metrics"
)

// Command creates the playrec command.
func Command(ctx *app.Context) *cobra.Command {
	var gain float64
	cmd := &cobra.Command{
		Use:   "playrec",
		Short: "Play white noise and record the input simultaneously",
		Long: "Play white noise on the output device while recording the input device for the " +
			"recorder duration. With the loopback backend the recording receives the played signal.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx, gain)
		},
	}
	cmd.Flags().Float64Var(&gain, "gain", generator.DefaultGainDB, "Signal gain in dB relative to full scale")
	cmd.Flags().Duration("duration", 0, "Recording length")
	ctx.Bind("recorder.duration", "duration")
	return cmd
}

func run(cmd *cobra.Command, ctx *app.Context, gain float64) error {
	s := ctx.Settings
	log := logger.Global().Module("playrec")

	backend, err := ctx.Backend()
	if err != nil {
		return err
	}

	src := play.Signal(s, &play.Options{Duration: s.Recorder.Duration.Seconds(), GainDB: gain})
	player, err := play.NewPlayer(ctx, backend, src)
	if err != nil {
		return err
	}
	defer func() {
		if err := player.Close(); err != nil {
			log.Warn("failed to close player", logger.Error(err))
		}
	}()

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

	log.Info("playing and recording",
		logger.String("player_region", player.RegionName()),
		logger.String("recorder_region", rec.RegionName()),
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

	var (
		played, recorded           audiocore.Audio
		playStatus, recordedStatus stream.StatusFlags
	)
	streams, sctx := errgroup.WithContext(gctx)
	streams.Go(func() error {
		var err error
		playStatus, err = player.Run(sctx, src)
		played = player.Playback()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	streams.Go(func() error {
		var err error
		recorded, recordedStatus, err = rec.Run(sctx, s.RecordFrames())
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer stopTelemetry()
		if err := streams.Wait(); err != nil {
			return err
		}
		app.Report(cmd.OutOrStdout(), "player", played, playStatus, s.Monitor.Reference)
		app.Report(cmd.OutOrStdout(), "recorder", recorded, recordedStatus, s.Monitor.Reference)
		return nil
	})
	return g.Wait()
}
