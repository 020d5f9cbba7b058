// Package cmd assembles the command line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/shmaudio/cmd/devices"
	"github.com/tphakala/shmaudio/cmd/monitor"
	"github.com/tphakala/shmaudio/cmd/play"
	"github.com/tphakala/shmaudio/cmd/playrec"
	"github.com/tphakala/shmaudio/cmd/record"
	"github.com/tphakala/shmaudio/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "shmaudio",
		Short:         "Record, play and monitor audio through shared memory ring buffers",
		Version:       ctx.Build.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	setupFlags(rootCmd, ctx)

	rootCmd.AddCommand(
		record.Command(ctx),
		play.Command(ctx),
		playrec.Command(ctx),
		monitor.Command(ctx),
		devices.Command(ctx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return ctx.Init(cmd.Flags())
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
// Flags override the config file only when set explicitly.
func setupFlags(rootCmd *cobra.Command, ctx *app.Context) {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.ConfigFile, "config", "c", "", "Path to config file (default searches ./, ~/.config/shmaudio, /etc/shmaudio)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("backend", "", "Audio backend (malgo or loopback)")
	flags.Int("samplerate", 0, "Sample rate in Hz")
	flags.Int("blocksize", 0, "Frames per audio callback")
	flags.Int("buffersize", 0, "Ring buffer capacity in frames")
	flags.String("dtype", "", "Sample type (int16, int24, int32, float32)")
	flags.String("latency", "", "Device latency preset (low or high)")
	flags.Bool("telemetry", false, "Enable Prometheus telemetry endpoint")
	flags.String("listen", "", "Listen address and port of telemetry endpoint")

	for key, name := range map[string]string{
		"debug":             "debug",
		"audio.backend":     "backend",
		"audio.samplerate":  "samplerate",
		"audio.blocksize":   "blocksize",
		"audio.buffersize":  "buffersize",
		"audio.dtype":       "dtype",
		"audio.latency":     "latency",
		"telemetry.enabled": "telemetry",
		"telemetry.listen":  "listen",
	} {
		ctx.Bind(key, name)
	}
}
