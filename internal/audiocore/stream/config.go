package stream

import (
	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/audiocore/channelmap"
	"github.com/tphakala/shmaudio/internal/conf"
	"github.com/tphakala/shmaudio/internal/errors"
)

// Config holds the pre-validated values a Recorder or Player is built from.
type Config struct {
	Device         string
	DeviceChannels int            // channels the device offers in this direction
	ChannelMap     channelmap.Map // nil selects channels 1..n
	Channels       int            // player only: channels of the source data
	SampleRate     int
	BlockSize      int
	BufferSize     int // ring buffer capacity in frames
	Type           audiocore.SampleType
	Latency        audiocore.Latency
	Region         string // shared region name, empty generates one
	ChunkSize      int    // natural chunk size of delivered audio
	Loop           bool   // player only
}

// RecorderConfig builds a recorder Config from settings.
func RecorderConfig(s *conf.Settings) (Config, error) {
	cfg, err := baseConfig(s)
	if err != nil {
		return Config{}, err
	}
	cfg.Device = s.Recorder.Device
	cfg.DeviceChannels = s.Recorder.DeviceChannels
	cfg.ChannelMap = mapOrNil(s.Recorder.ChannelMap)
	cfg.Region = s.Recorder.Region
	return cfg, nil
}

// PlayerConfig builds a player Config for a source with dataChannels channels.
func PlayerConfig(s *conf.Settings, dataChannels int) (Config, error) {
	cfg, err := baseConfig(s)
	if err != nil {
		return Config{}, err
	}
	cfg.Device = s.Player.Device
	cfg.DeviceChannels = s.Player.DeviceChannels
	cfg.ChannelMap = mapOrNil(s.Player.ChannelMap)
	cfg.Channels = dataChannels
	cfg.Loop = s.Player.Loop
	cfg.Region = s.Player.Region
	return cfg, nil
}

func baseConfig(s *conf.Settings) (Config, error) {
	typ, err := audiocore.ParseSampleType(s.Audio.DType)
	if err != nil {
		return Config{}, errors.New(err).
			Component("stream").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return Config{
		SampleRate: s.Audio.SampleRate,
		BlockSize:  s.Audio.BlockSize,
		BufferSize: s.Audio.BufferSize,
		Type:       typ,
		Latency:    audiocore.Latency(s.Audio.Latency),
		ChunkSize:  s.ChunkSize(),
	}, nil
}

func (c Config) validate() error {
	switch {
	case c.BufferSize <= 0:
		return invalidConfig("buffer size must be positive", c.BufferSize)
	case c.SampleRate <= 0:
		return invalidConfig("sample rate must be positive", c.SampleRate)
	case c.BlockSize < 0:
		return invalidConfig("block size must not be negative", c.BlockSize)
	case !c.Type.Valid():
		return invalidConfig("invalid sample type", int(c.Type))
	case c.DeviceChannels <= 0:
		return invalidConfig("device channels must be positive", c.DeviceChannels)
	}
	return nil
}

func invalidConfig(msg string, value int) error {
	return errors.New(nil).
		Component("stream").
		Category(errors.CategoryValidation).
		Context("value", value).
		Context("error", msg).
		Build()
}

// mapOrNil treats an empty configured map as "all channels in order".
func mapOrNil(m []int) channelmap.Map {
	if len(m) == 0 {
		return nil
	}
	return channelmap.Map(m)
}
