// Package metrics provides the Prometheus collectors for streams and monitors.
package metrics

import "time"

// Stream kind label values.
const (
	KindRecorder = "recorder"
	KindPlayer   = "player"
)

// Abort reason label values.
const (
	// ReasonComplete means the transfer reached its target.
	ReasonComplete = "complete"
	// ReasonOverflow means the recording buffer filled before the target.
	ReasonOverflow = "overflow"
	// ReasonStopped means Stop was requested.
	ReasonStopped = "stopped"
	// ReasonBackend means the backend ended the stream on its own.
	ReasonBackend = "backend"
)

// ShutdownTimeout bounds the graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second
