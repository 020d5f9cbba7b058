// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/shmaudio/internal/logger"
)

const (
	DefaultSampleRate = 48000
	DefaultBlockSize  = 256
	DefaultBufferSize = 480000
	DefaultDType      = "float32"
	DefaultLatency    = "low"
	DefaultBackend    = "malgo"

	MinSampleRate = 11025
	MaxSampleRate = 192000

	// minBufferSeconds is the buffer length below which a warning is logged
	minBufferSeconds = 5
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("audio.backend", DefaultBackend)
	v.SetDefault("audio.samplerate", DefaultSampleRate)
	v.SetDefault("audio.blocksize", DefaultBlockSize)
	v.SetDefault("audio.buffersize", DefaultBufferSize)
	v.SetDefault("audio.dtype", DefaultDType)
	v.SetDefault("audio.latency", DefaultLatency)

	v.SetDefault("recorder.device", "")
	v.SetDefault("recorder.device_channels", 2)
	v.SetDefault("recorder.channelmap", []int{1, 2})
	v.SetDefault("recorder.duration", 5*time.Second)
	v.SetDefault("recorder.region", "")

	v.SetDefault("player.device", "")
	v.SetDefault("player.device_channels", 2)
	v.SetDefault("player.channelmap", []int{1, 2})
	v.SetDefault("player.loop", false)
	v.SetDefault("player.region", "")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", 125*time.Millisecond)
	v.SetDefault("monitor.chunksize", 0)
	v.SetDefault("monitor.logpath", "monitor.log")
	v.SetDefault("monitor.reference", 1.0)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "localhost:8090")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
}

// DefaultSettings returns the settings produced by an empty configuration.
func DefaultSettings() *Settings {
	return &Settings{
		Audio: AudioSettings{
			Backend:    DefaultBackend,
			SampleRate: DefaultSampleRate,
			BlockSize:  DefaultBlockSize,
			BufferSize: DefaultBufferSize,
			DType:      DefaultDType,
			Latency:    DefaultLatency,
		},
		Recorder: RecorderSettings{
			DeviceChannels: 2,
			ChannelMap:     []int{1, 2},
			Duration:       5 * time.Second,
		},
		Player: PlayerSettings{
			DeviceChannels: 2,
			ChannelMap:     []int{1, 2},
		},
		Monitor: MonitorSettings{
			Enabled:   true,
			Interval:  125 * time.Millisecond,
			LogPath:   "monitor.log",
			Reference: 1.0,
		},
		Logging: logger.LoggingConfig{
			DefaultLevel: logger.DefaultLogLevel,
			Timezone:     "Local",
			Console:      logger.ConsoleOutput{Enabled: true, Level: logger.DefaultLogLevel},
			FileOutput:   logger.FileOutput{Path: logger.DefaultLogPath, Level: logger.DefaultLogLevel},
		},
		Telemetry: TelemetrySettings{Listen: "localhost:8090"},
	}
}
