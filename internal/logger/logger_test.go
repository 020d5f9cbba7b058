package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		out = append(out, rec)
	}
	return out
}

func TestModuleLoggerWritesStructuredFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LogLevelDebug).Module("stream")

	log.Info("recorder started",
		String("device", "default"),
		Int("frames", 4800),
		Float64("fill", 0.123456),
		Duration("period", 125*time.Millisecond),
		Bool("loop", false))

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "recorder started", rec["msg"])
	assert.Equal(t, "stream", rec["module"])
	assert.Equal(t, "default", rec["device"])
	assert.InDelta(t, 4800, rec["frames"], 0)
	assert.InDelta(t, 0.123, rec["fill"], 1e-9)
	assert.Equal(t, "125ms", rec["period"])
	assert.Equal(t, false, rec["loop"])
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LogLevelWarn).Module("monitor")

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	log.Error("shown too", Error(os.ErrNotExist))

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "WARN", recs[0]["level"])
	assert.Equal(t, "ERROR", recs[1]["level"])
	assert.Equal(t, os.ErrNotExist.Error(), recs[1]["error"])
}

func TestTraceLevelName(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LogLevelTrace).Module("shm")
	log.Trace("mapped")
	log.Log(LogLevelInfo, "explicit")

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "TRACE", recs[0]["level"])
	assert.Equal(t, "INFO", recs[1]["level"])
}

func TestWithAndSubmodule(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	parent := NewWriterLogger(&buf, LogLevelInfo).Module("audiocore").With(String("region", "r1"))
	child := parent.Module("player")
	child.Info("tick")

	ctxLog := parent.WithContext(WithTraceID(context.Background(), "abc"))
	ctxLog.Info("traced")

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "audiocore.player", recs[0]["module"])
	assert.Equal(t, "r1", recs[0]["region"])
	assert.Equal(t, "abc", recs[1]["trace_id"])
}

func TestNonFiniteFloatsAreStrings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LogLevelInfo).Module("monitor")
	log.Info("silence", Float64("db", math.Inf(-1)))

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "-Inf", recs[0]["db"])
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		Timezone:     "UTC",
		FileOutput:   FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"stream": "debug"},
	})
	require.NoError(t, err)

	cl.Module("stream").Debug("written")
	cl.Module("other").Debug("filtered by default level")
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())
	require.NoError(t, cl.Close(), "close is idempotent")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written"`)
	assert.NotContains(t, string(data), "filtered by default level")
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = NewCentralLogger(nil)
	require.Error(t, err)
}

func TestGlobalFallback(t *testing.T) {
	t.Parallel()

	require.NotNil(t, Global())
	assert.NotNil(t, Global().Module("test"))
}
