// Package backend selects the audio backend streams are opened on.
package backend

import (
	"context"
	"fmt"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/audiocore/backend/loopback"
	"github.com/tphakala/shmaudio/internal/audiocore/backend/malgo"
	"github.com/tphakala/shmaudio/internal/conf"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/logger"
)

// New creates the backend named in settings. A loopback backend is sized
// to carry the wider of the recorder and player devices for one second.
func New(settings *conf.Settings) (audiocore.Backend, error) {
	switch settings.Audio.Backend {
	case malgo.Name, "soundcard", "":
		return malgo.New(logger.Global().Module("malgo")), nil

	case loopback.Name:
		typ, err := audiocore.ParseSampleType(settings.Audio.DType)
		if err != nil {
			return nil, errors.New(err).
				Component("audiocore").
				Category(errors.CategoryConfiguration).
				Context("dtype", settings.Audio.DType).
				Build()
		}
		return loopback.New(loopback.Options{
			Channels:  max(settings.Recorder.DeviceChannels, settings.Player.DeviceChannels),
			Type:      typ,
			CableSize: settings.Audio.SampleRate,
		}, logger.Global().Module("loopback"))

	default:
		return nil, errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryConfiguration).
			Context("backend", settings.Audio.Backend).
			Context("error", fmt.Sprintf("unknown audio backend: %s", settings.Audio.Backend)).
			Build()
	}
}

// ListDevices returns the devices b offers, or an error when b cannot
// enumerate devices.
func ListDevices(ctx context.Context, b audiocore.Backend) ([]audiocore.DeviceInfo, error) {
	lister, ok := b.(audiocore.DeviceLister)
	if !ok {
		return nil, errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryAudioDevice).
			Context("backend", b.Name()).
			Context("error", "backend cannot list devices").
			Build()
	}
	return lister.Devices(ctx)
}
