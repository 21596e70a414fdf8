package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLoggingState() {
	mu.Lock()
	defer mu.Unlock()

	baseWriter = os.Stderr
	baseLogger = zerolog.New(baseWriter).With().Timestamp().Logger()
	log.Logger = baseLogger
	zerolog.TimeFieldFormat = defaultTimeFmt
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	isTerminalFn = func(int) bool { return false }
}

func readJSONLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	line := strings.TrimSpace(buf.String())
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	require.NotEmpty(t, line, "expected log output")

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &event))
	return event
}

func TestInitJSONFormatSetsLevelAndComponent(t *testing.T) {
	t.Cleanup(resetLoggingState)

	var buf bytes.Buffer
	Init(Config{Format: "json", Level: "debug", Component: "license", Output: &buf})

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	log.Debug().Str("domain", "example.com").Msg("checking")

	event := readJSONLine(t, &buf)
	assert.Equal(t, "license", event["component"])
	assert.Equal(t, "example.com", event["domain"])
	assert.Equal(t, "checking", event["message"])
}

func TestInitConsoleFormat(t *testing.T) {
	t.Cleanup(resetLoggingState)

	var buf bytes.Buffer
	Init(Config{Format: "console", Output: &buf})
	log.Info().Msg("hello")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.False(t, json.Valid([]byte(strings.TrimSpace(out))), "console output is not JSON")
}

func TestInitLevelFiltersEvents(t *testing.T) {
	t.Cleanup(resetLoggingState)

	var buf bytes.Buffer
	Init(Config{Format: "json", Level: "warn", Output: &buf})
	log.Info().Msg("hidden")
	assert.Empty(t, buf.String())
	assert.False(t, IsLevelEnabled(zerolog.InfoLevel))
	assert.True(t, IsLevelEnabled(zerolog.ErrorLevel))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":         zerolog.InfoLevel,
		"INFO":     zerolog.InfoLevel,
		"debug":    zerolog.DebugLevel,
		" warning": zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"off":      zerolog.Disabled,
		"bogus":    zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
	assert.True(t, ValidLevel("Debug"))
	assert.False(t, ValidLevel("bogus"))
	assert.True(t, ValidFormat("auto"))
	assert.False(t, ValidFormat("xml"))
}

func TestSelectWriterAutoUsesTerminalDetection(t *testing.T) {
	t.Cleanup(resetLoggingState)

	isTerminalFn = func(int) bool { return true }
	_, isConsole := selectWriter("auto", os.Stderr).(zerolog.ConsoleWriter)
	assert.True(t, isConsole)

	isTerminalFn = func(int) bool { return false }
	assert.Equal(t, os.Stderr, selectWriter("auto", os.Stderr))

	var buf bytes.Buffer
	assert.Equal(t, &buf, selectWriter("", &buf), "non-file writers are never terminals")
}

func TestRunIDRoundTrip(t *testing.T) {
	t.Cleanup(resetLoggingState)

	ctx, id := WithRunID(context.Background(), "")
	require.NotEmpty(t, id)
	assert.Equal(t, id, RunIDFromContext(ctx))

	ctx, id = WithRunID(ctx, " fixed ")
	assert.Equal(t, "fixed", id)
	assert.Equal(t, "", RunIDFromContext(context.Background()))

	var buf bytes.Buffer
	Init(Config{Format: "json", Output: &buf})
	logger := FromContext(ctx)
	logger.Info().Msg("scan")
	event := readJSONLine(t, &buf)
	assert.Equal(t, "fixed", event["run_id"])
}
