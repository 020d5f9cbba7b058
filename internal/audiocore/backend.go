package audiocore

import "context"

// Direction selects which side of a device a stream uses.
type Direction int

const (
	Capture Direction = iota
	Playback
)

func (d Direction) String() string {
	if d == Playback {
		return "playback"
	}
	return "capture"
}

// Latency selects the backend buffering profile.
type Latency string

const (
	LatencyLow  Latency = "low"
	LatencyHigh Latency = "high"
)

// StreamParams describe a stream. Values are expected to be validated by the
// configuration layer.
type StreamParams struct {
	Direction  Direction
	Device     string // name or ID, empty for the system default
	Channels   int    // channels exchanged with the callback
	SampleRate int
	BlockSize  int // frames per callback, 0 lets the backend choose
	Type       SampleType
	Latency    Latency
}

// Callbacks connect a stream to its engine.
//
// Process runs on the backend's real-time thread once per hardware block. For
// capture streams out is empty, for playback streams in is empty. A playback
// block must be completely filled before Process returns. When Process
// returns an error the backend invokes no further callbacks and calls
// Finished once from another goroutine.
//
// Finished is also called once when the backend stops the stream on its own.
type Callbacks struct {
	Process  func(in, out Block) error
	Finished func()
}

// Stream is an opened backend stream.
type Stream interface {
	Start() error
	// Stop halts callbacks. It is safe to call after the stream finished.
	Stop() error
	// Close releases device resources. The stream cannot be restarted.
	Close() error
}

// Backend opens real-time streams.
type Backend interface {
	Name() string
	Open(ctx context.Context, params StreamParams, cb Callbacks) (Stream, error)
}

// DeviceInfo describes a device reported by a DeviceLister.
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string
	Direction Direction
	Default   bool
}

// DeviceLister is implemented by backends that can enumerate devices.
type DeviceLister interface {
	Devices(ctx context.Context) ([]DeviceInfo, error)
}
