package monitor

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/observability/metrics"
)

const (
	logRule    = "-------------"
	timeLayout = "2006-01-02 15:04:05.000000"
)

// LevelMonitor is a Handler that appends the RMS level of every chunk to a
// text log, one line per tick, and exports per-channel dB gauges.
//
// The file starts with a header block naming the monitor and ends with the
// end note passed to NewLevelMonitor.
type LevelMonitor struct {
	name      string
	path      string
	reference float64
	end       string
	inst      *metrics.MonitorInstruments
	now       func() time.Time

	f *os.File
	w *bufio.Writer
}

// NewLevelMonitor returns a handler logging to path. A reference of zero
// or less uses full scale.
func NewLevelMonitor(name, path string, reference float64, inst *metrics.MonitorInstruments) *LevelMonitor {
	if reference <= 0 {
		reference = 1
	}
	return &LevelMonitor{
		name:      name,
		path:      path,
		reference: reference,
		end:       "end of log",
		inst:      inst,
		now:       time.Now,
	}
}

// SetEndNote replaces the note written by Teardown.
func (l *LevelMonitor) SetEndNote(note string) { l.end = note }

// Setup opens the log in append mode and writes the header.
func (l *LevelMonitor) Setup() error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return l.fileError(err, "create_dir")
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return l.fileError(err, "open")
	}
	l.f = f
	l.w = bufio.NewWriter(f)
	fmt.Fprintf(l.w, "%s\n# LOG OUTPUT FILE\n# %s\n# %s\n\n", logRule, l.name, l.now().Format(timeLayout))
	return l.flush()
}

// Tick logs one line for chunk. An empty chunk still produces a line so the
// log keeps the monitor cadence.
func (l *LevelMonitor) Tick(chunk audiocore.Block) error {
	rms := RMS(chunk)
	db := make([]float64, len(rms))
	for i, r := range rms {
		db[i] = DB(r, l.reference)
		l.inst.Level(strconv.Itoa(i+1), db[i])
	}
	fmt.Fprintf(l.w, "%s\tData shape=(%d, %d)\tRMS=%s\tdB=%s\n",
		l.now().Format(timeLayout), chunk.Frames(), chunk.Channels, formatList(rms), formatList(db))
	return l.flush()
}

// Teardown writes the end note and closes the file. It is a no-op when
// Setup never opened the file.
func (l *LevelMonitor) Teardown() error {
	if l.f == nil {
		return nil
	}
	fmt.Fprintf(l.w, "\n# %s\n%s\n\n", l.end, logRule)
	err := l.flush()
	if cerr := l.f.Close(); cerr != nil && err == nil {
		err = l.fileError(cerr, "close")
	}
	l.f, l.w = nil, nil
	return err
}

func (l *LevelMonitor) flush() error {
	if err := l.w.Flush(); err != nil {
		return l.fileError(err, "write")
	}
	return nil
}

func (l *LevelMonitor) fileError(err error, op string) error {
	return errors.New(err).
		Component("monitor").
		Category(errors.CategoryFileIO).
		Context("path", l.path).
		Context("operation", op).
		Build()
}

// RMS returns the root mean square of each channel of b. An empty block
// yields zeros.
func RMS(b audiocore.Block) []float64 {
	out := make([]float64, b.Channels)
	frames := b.Frames()
	if frames == 0 {
		return out
	}
	for f := range frames {
		for c := range b.Channels {
			v := b.Sample(f, c)
			out[c] += v * v
		}
	}
	for c := range out {
		out[c] = math.Sqrt(out[c] / float64(frames))
	}
	return out
}

// DB converts an amplitude to decibels relative to ref. Silence maps to -Inf.
func DB(amplitude, ref float64) float64 {
	return 20 * math.Log10(amplitude/ref)
}

func formatList(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', 6, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
