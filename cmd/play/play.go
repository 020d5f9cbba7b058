// Package play implements the play command.
package play

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/shmaudio/internal/app"
	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/audiocore/generator"
	"github.com/tphakala/shmaudio/internal/audiocore/stream"
	"github.com/tphakala/shmaudio/internal/conf"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/logger"
	levels "github.com/tphakala/shmaudio/internal/monitor"
	"github.com/tphakala/shmaudio/internal/observability/metrics"
)

// Options configure the generated test signal.
type Options struct {
	Duration float64 // seconds
	GainDB   float64
}

// Command creates the play command.
func Command(ctx *app.Context) *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play white noise through the output device",
		Long: "Play normalized white noise on the mapped output channels. With --loop the " +
			"signal repeats until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&opts.Duration, "seconds", 5, "Length of the generated signal in seconds")
	flags.Float64Var(&opts.GainDB, "gain", generator.DefaultGainDB, "Signal gain in dB relative to full scale")
	flags.String("device", "", "Output device name, ID or substring")
	flags.Int("device-channels", 0, "Output channels the device offers")
	flags.IntSlice("channelmap", nil, "1-based device channels to play on")
	flags.Bool("loop", false, "Repeat the signal until interrupted")
	flags.String("region", "", "Shared region name, empty generates one")
	for key, name := range map[string]string{
		"player.device":          "device",
		"player.device_channels": "device-channels",
		"player.channelmap":      "channelmap",
		"player.loop":            "loop",
		"player.region":          "region",
	} {
		ctx.Bind(key, name)
	}
	return cmd
}

// Signal generates the noise played for s, one data channel per mapped
// output channel.
func Signal(s *conf.Settings, opts *Options) audiocore.Audio {
	channels := len(s.Player.ChannelMap)
	if channels == 0 {
		channels = s.Player.DeviceChannels
	}
	noise := generator.WhiteNoise(generator.Frames(opts.Duration, s.Audio.SampleRate), channels, opts.GainDB, s.Audio.SampleRate)
	noise.ChunkSize = s.ChunkSize()
	return noise
}

// NewPlayer builds a player for src from settings.
func NewPlayer(ctx *app.Context, backend audiocore.Backend, src audiocore.Audio) (*stream.Player, error) {
	cfg, err := stream.PlayerConfig(ctx.Settings, src.Channels())
	if err != nil {
		return nil, err
	}
	return stream.NewPlayer(cfg, backend,
		stream.WithLogger(logger.Global().Module("stream")),
		stream.WithMetrics(ctx.StreamMetrics(metrics.KindPlayer)))
}

func run(cmd *cobra.Command, ctx *app.Context, opts *Options) error {
	s := ctx.Settings
	log := logger.Global().Module("play")

	backend, err := ctx.Backend()
	if err != nil {
		return err
	}
	src := Signal(s, opts)
	player, err := NewPlayer(ctx, backend, src)
	if err != nil {
		return err
	}
	defer func() {
		if err := player.Close(); err != nil {
			log.Warn("failed to close player", logger.Error(err))
		}
	}()
	log.Info("playing",
		logger.String("region", player.RegionName()),
		logger.Int("frames", src.Frames()),
		logger.Bool("loop", s.Player.Loop))

	var mon *levels.Monitor
	if s.Monitor.Enabled {
		if mon, err = ctx.LevelMonitor("player", s.Monitor.LogPath); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(cmd.Context())
	telemetryCtx, stopTelemetry := context.WithCancel(gctx)
	defer stopTelemetry()
	g.Go(func() error { return ctx.ServeTelemetry(telemetryCtx) })

	if mon != nil {
		g.Go(func() error { return mon.Run(gctx, player) })
	}

	g.Go(func() error {
		defer stopTelemetry()
		status, err := player.Run(gctx, src)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		app.Report(cmd.OutOrStdout(), "player", player.Playback(), status, s.Monitor.Reference)
		return nil
	})
	return g.Wait()
}
