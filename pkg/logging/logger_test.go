package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level LogLevel) (*StructuredLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewStructuredLogger("ghg-pipeline", level)
	l.SetOutput(&buf)
	l.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return l, &buf
}

func TestLoggerWritesJSONLines(t *testing.T) {
	l, buf := newTestLogger(InfoLevel)

	l.Info("run complete", Fields{"rows_in": 3})
	l.Error("run failed", nil, errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "INFO", first.Level)
	assert.Equal(t, "ghg-pipeline", first.Service)
	assert.Equal(t, "run complete", first.Message)
	assert.EqualValues(t, 3, first.Fields["rows_in"])

	var second LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "boom", second.Error)
}

func TestLoggerFiltersByLevel(t *testing.T) {
	l, buf := newTestLogger(WarnLevel)
	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	assert.Empty(t, buf.String())

	l.Warn("shown", nil)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}

func TestWithFieldsMerges(t *testing.T) {
	l, buf := newTestLogger(DebugLevel)
	child := l.WithFields(Fields{"kind": "emissions", "stage": "validate"})
	child.Debug("checking", Fields{"stage": "derive"})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "emissions", entry.Fields["kind"])
	assert.Equal(t, "derive", entry.Fields["stage"])
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": DebugLevel, "": InfoLevel, "Warning": WarnLevel, "ERROR": ErrorLevel} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard().Error("ignored", nil, errors.New("x")) })
}
