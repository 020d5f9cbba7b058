// validate.go - settings validation
package conf

import (
	"fmt"
	"slices"
	"strings"
)

// supportedDTypes lists accepted sample types. float64 is accepted and
// stored as float32.
var supportedDTypes = []string{"int16", "int24", "int32", "float32", "float64"}

// ValidationError collects every problem found in one pass.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings checks settings and normalizes values in place.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validateAudioSettings(&settings.Audio, &ve)
	validateChannelMap("recorder", settings.Recorder.ChannelMap, settings.Recorder.DeviceChannels, &ve)
	validateChannelMap("player", settings.Player.ChannelMap, settings.Player.DeviceChannels, &ve)

	if settings.Recorder.Duration < 0 {
		ve.Errors = append(ve.Errors, "recorder duration must not be negative")
	}
	if settings.Monitor.Interval <= 0 {
		ve.Errors = append(ve.Errors, "monitor interval must be positive")
	}
	if settings.Monitor.ChunkSize < 0 {
		ve.Errors = append(ve.Errors, "monitor chunksize must not be negative")
	}
	if settings.Monitor.Reference <= 0 {
		ve.Errors = append(ve.Errors, "monitor reference must be positive")
	}
	if settings.Telemetry.Enabled && settings.Telemetry.Listen == "" {
		ve.Errors = append(ve.Errors, "telemetry listen address is required when telemetry is enabled")
	}
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(a *AudioSettings, ve *ValidationError) {
	a.Backend = strings.ToLower(a.Backend)
	if a.Backend != "malgo" && a.Backend != "loopback" {
		ve.Errors = append(ve.Errors, fmt.Sprintf("unknown audio backend %q", a.Backend))
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		ve.Errors = append(ve.Errors, fmt.Sprintf("samplerate must be between %d and %d, got %d", MinSampleRate, MaxSampleRate, a.SampleRate))
	}
	if a.BlockSize <= 0 {
		ve.Errors = append(ve.Errors, "blocksize must be positive")
	}
	if a.BufferSize <= 0 {
		ve.Errors = append(ve.Errors, "buffersize must be positive")
	}

	a.DType = strings.ToLower(a.DType)
	switch {
	case a.DType == "float64":
		a.DType = "float32"
	case !slices.Contains(supportedDTypes, a.DType):
		ve.Errors = append(ve.Errors, fmt.Sprintf("unsupported dtype %q", a.DType))
	}

	a.Latency = strings.ToLower(a.Latency)
	if a.Latency != "low" && a.Latency != "high" {
		ve.Errors = append(ve.Errors, fmt.Sprintf("latency must be low or high, got %q", a.Latency))
	}
}

// validateChannelMap checks a 1-based mapping against the device channel count.
func validateChannelMap(section string, mapping []int, deviceChannels int, ve *ValidationError) {
	if deviceChannels <= 0 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("%s device_channels must be positive", section))
		return
	}
	seen := make(map[int]bool, len(mapping))
	for _, ch := range mapping {
		switch {
		case ch < 1:
			ve.Errors = append(ve.Errors, fmt.Sprintf("%s channelmap entries are 1-based, got %d", section, ch))
		case ch > deviceChannels:
			ve.Errors = append(ve.Errors, fmt.Sprintf("%s channel %d exceeds device_channels %d", section, ch, deviceChannels))
		case seen[ch]:
			ve.Errors = append(ve.Errors, fmt.Sprintf("%s channel %d is mapped more than once", section, ch))
		}
		seen[ch] = true
	}
}

// Warnings returns non-fatal configuration problems.
func Warnings(settings *Settings) []string {
	var warnings []string
	if settings.Audio.BufferSize < minBufferSeconds*settings.Audio.SampleRate {
		warnings = append(warnings, fmt.Sprintf(
			"buffersize %d holds less than %d seconds at %d Hz",
			settings.Audio.BufferSize, minBufferSeconds, settings.Audio.SampleRate))
	}
	if settings.Audio.BlockSize > settings.Audio.BufferSize {
		warnings = append(warnings, "blocksize is larger than buffersize")
	}
	return warnings
}
