package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/audiocore/stream"
	"github.com/tphakala/shmaudio/internal/monitor"
)

// Report writes a one-run summary: frames, duration, status and the level
// of every channel.
func Report(w io.Writer, kind string, a audiocore.Audio, status stream.StatusFlags, reference float64) {
	if reference <= 0 {
		reference = 1
	}
	fmt.Fprintf(w, "%s: %d frames (%s), %d channels, status %s\n",
		kind, a.Frames(), a.Duration(), a.Channels(), status)

	rms := monitor.RMS(a.Block)
	levels := make([]string, len(rms))
	for i, r := range rms {
		levels[i] = fmt.Sprintf("ch%d %.1f dB", i+1, monitor.DB(r, reference))
	}
	if len(levels) > 0 {
		fmt.Fprintf(w, "  levels: %s\n", strings.Join(levels, ", "))
	}
}
