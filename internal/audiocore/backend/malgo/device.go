package malgo

import (
	"context"
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/errors"
)

// getBackendForPlatform returns the appropriate malgo backend for the current platform
func getBackendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.New(nil).
			Component("malgo").
			Category(errors.CategoryAudio).
			Context("error", "unsupported operating system").
			Context("os", runtime.GOOS).
			Build()
	}
}

func deviceType(dir audiocore.Direction) malgo.DeviceType {
	if dir == audiocore.Playback {
		return malgo.Playback
	}
	return malgo.Capture
}

// Devices lists capture and playback devices.
func (b *Backend) Devices(ctx context.Context) ([]audiocore.DeviceInfo, error) {
	mctx, err := b.initContext()
	if err != nil {
		return nil, err
	}
	defer freeContext(mctx)

	var devices []audiocore.DeviceInfo
	for _, dir := range []audiocore.Direction{audiocore.Capture, audiocore.Playback} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		infos, err := mctx.Devices(deviceType(dir))
		if err != nil {
			return nil, errors.New(err).
				Component("malgo").
				Category(errors.CategoryAudioDevice).
				Context("operation", "enumerate_devices").
				Context("direction", dir.String()).
				Build()
		}
		devices = append(devices, describe(infos, dir)...)
	}
	return devices, nil
}

// describe converts miniaudio device records. Index refers to the position
// in infos.
func describe(infos []malgo.DeviceInfo, dir audiocore.Direction) []audiocore.DeviceInfo {
	devices := make([]audiocore.DeviceInfo, 0, len(infos))
	for i := range infos {
		// Skip the discard/null device
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			decodedID = infos[i].ID.String()
		}
		devices = append(devices, audiocore.DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodedID,
			Direction: dir,
			Default:   infos[i].IsDefault == 1,
		})
	}
	return devices
}

// SelectDevice finds a device matching the given name or ID and returns its
// Index. An empty name, "default" or "sysdefault" selects the default device,
// or the first one when none is marked default. Matching tries the exact
// name, the decoded ID and then a name substring.
func SelectDevice(devices []audiocore.DeviceInfo, deviceName string) (int, error) {
	if deviceName == "" || deviceName == "default" || deviceName == "sysdefault" {
		for _, d := range devices {
			if d.Default {
				return d.Index, nil
			}
		}
		if len(devices) > 0 {
			return devices[0].Index, nil
		}
	}

	for _, d := range devices {
		if d.Name == deviceName {
			return d.Index, nil
		}
	}
	for _, d := range devices {
		if d.ID == deviceName {
			return d.Index, nil
		}
	}
	for _, d := range devices {
		if deviceName != "" && strings.Contains(d.Name, deviceName) {
			return d.Index, nil
		}
	}

	return -1, errors.New(nil).
		Component("malgo").
		Category(errors.CategoryNotFound).
		Context("device_name", deviceName).
		Context("available_devices", len(devices)).
		Context("error", "no matching audio device found").
		Build()
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// IsHardwareDevice checks if the device ID indicates a hardware device. On
// Linux, hardware devices have IDs in the format ":X,Y"; elsewhere every
// device counts.
func IsHardwareDevice(decodedID string) bool {
	if runtime.GOOS == "linux" {
		return strings.Contains(decodedID, ":") && strings.Contains(decodedID, ",")
	}
	return true
}
