// Package conf loads and validates the settings every streamer, monitor and
// command is constructed from. There is no process-wide settings instance:
// Load returns a value that callers pass down explicitly.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/logger"
)

// Settings is the complete application configuration.
type Settings struct {
	Debug     bool                 `yaml:"debug" mapstructure:"debug"`
	Audio     AudioSettings        `yaml:"audio" mapstructure:"audio"`
	Recorder  RecorderSettings     `yaml:"recorder" mapstructure:"recorder"`
	Player    PlayerSettings       `yaml:"player" mapstructure:"player"`
	Monitor   MonitorSettings      `yaml:"monitor" mapstructure:"monitor"`
	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Telemetry TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
	Sentry    SentrySettings       `yaml:"sentry" mapstructure:"sentry"`
}

// AudioSettings are shared by the recorder and the player.
type AudioSettings struct {
	Backend    string `yaml:"backend" mapstructure:"backend"`       // malgo or loopback
	SampleRate int    `yaml:"samplerate" mapstructure:"samplerate"` // Hz, 11025..192000
	BlockSize  int    `yaml:"blocksize" mapstructure:"blocksize"`   // frames per callback
	BufferSize int    `yaml:"buffersize" mapstructure:"buffersize"` // ring buffer capacity in frames
	DType      string `yaml:"dtype" mapstructure:"dtype"`           // int16, int24, int32, float32
	Latency    string `yaml:"latency" mapstructure:"latency"`       // low or high
}

// RecorderSettings configure the capture stream.
type RecorderSettings struct {
	Device         string        `yaml:"device" mapstructure:"device"`
	DeviceChannels int           `yaml:"device_channels" mapstructure:"device_channels"` // input channels the device offers
	ChannelMap     []int         `yaml:"channelmap" mapstructure:"channelmap"`           // 1-based hardware channels
	Duration       time.Duration `yaml:"duration" mapstructure:"duration"`
	Region         string        `yaml:"region" mapstructure:"region"` // shared region name, empty to generate
}

// PlayerSettings configure the playback stream.
type PlayerSettings struct {
	Device         string `yaml:"device" mapstructure:"device"`
	DeviceChannels int    `yaml:"device_channels" mapstructure:"device_channels"` // output channels the device offers
	ChannelMap     []int  `yaml:"channelmap" mapstructure:"channelmap"`
	Loop           bool   `yaml:"loop" mapstructure:"loop"`
	Region         string `yaml:"region" mapstructure:"region"`
}

// MonitorSettings configure the periodic level monitor.
type MonitorSettings struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval  time.Duration `yaml:"interval" mapstructure:"interval"`
	ChunkSize int           `yaml:"chunksize" mapstructure:"chunksize"` // frames per tick, 0 uses blocksize
	LogPath   string        `yaml:"logpath" mapstructure:"logpath"`
	Reference float64       `yaml:"reference" mapstructure:"reference"` // dB reference amplitude
}

// TelemetrySettings configure the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// SentrySettings configure error reporting.
type SentrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// ConfigFile is an explicit config path. When empty the default search
	// paths are used.
	ConfigFile string
	// Bindings map config keys such as "audio.samplerate" to command line
	// flags. A flag only overrides the file when it was set explicitly.
	Bindings map[string]*pflag.Flag
	// WriteDefault creates a config file with defaults when none is found.
	WriteDefault bool
}

// Load reads configuration from file, environment and flags, then validates it.
func Load(opts LoadOptions) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	log := logger.Global().Module("conf")
	for _, w := range bindEnvVars(v) {
		log.Warn("environment variable ignored", logger.String("reason", w))
	}

	for key, flag := range opts.Bindings {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("error binding flag %q: %w", key, err)
		}
	}

	if err := readConfig(v, opts); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	for _, w := range Warnings(settings) {
		log.Warn(w)
	}
	if used := v.ConfigFileUsed(); used != "" {
		log.Debug("configuration loaded", logger.String("path", used))
	}
	return settings, nil
}

// readConfig reads the config file if one exists, creating a default one when requested.
func readConfig(v *viper.Viper, opts LoadOptions) error {
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if _, err := os.Stat(opts.ConfigFile); os.IsNotExist(err) {
			if !opts.WriteDefault {
				return nil
			}
			if err := createDefaultConfig(opts.ConfigFile); err != nil {
				return err
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if opts.WriteDefault {
				paths, perr := GetDefaultConfigPaths()
				if perr != nil {
					return perr
				}
				path := filepath.Join(paths[0], "config.yaml")
				if err := createDefaultConfig(path); err != nil {
					return err
				}
				v.SetConfigFile(path)
				return v.ReadInConfig()
			}
			return nil
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}
	return nil
}

// createDefaultConfig writes DefaultSettings as YAML to path.
func createDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := SaveYAMLConfig(path, DefaultSettings()); err != nil {
		return err
	}
	logger.Global().Module("conf").Info("created default config file", logger.String("path", path))
	return nil
}

// SaveYAMLConfig writes settings to configPath through a temporary file and rename.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", "create_temp").
			Build()
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	return os.Rename(tmpName, configPath)
}

// GetDefaultConfigPaths returns the search paths for config.yaml. If a config
// file exists in one of them, only that path is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	paths := []string{
		filepath.Join(homeDir, ".config", "shmaudio"),
		"/etc/shmaudio",
		".",
	}
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(p, "config.yaml")); err == nil {
			return []string{p}, nil
		}
	}
	return paths, nil
}

// ChunkSize returns the monitor chunk size, defaulting to the block size.
func (s *Settings) ChunkSize() int {
	if s.Monitor.ChunkSize > 0 {
		return s.Monitor.ChunkSize
	}
	return s.Audio.BlockSize
}

// RecordFrames converts the recorder duration to frames, rounding up.
func (s *Settings) RecordFrames() int {
	if s.Recorder.Duration <= 0 {
		return 0
	}
	secs := s.Recorder.Duration.Seconds()
	frames := int(secs * float64(s.Audio.SampleRate))
	if float64(frames) < secs*float64(s.Audio.SampleRate) {
		frames++
	}
	return frames
}
