package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSONIncludesContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "json", slog.LevelInfo)

	ctx := Ctx(context.Background(), slog.String("poll_id", "p-1"))
	ctx = Ctx(ctx, slog.Int("attempt", 2))
	l.InfoContext(ctx, "poll finished", slog.Int("entries", 3))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "poll finished", entry["msg"])
	assert.Equal(t, "p-1", entry["poll_id"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.Equal(t, float64(3), entry["entries"])
}

func TestCtxDoesNotShareBackingArray(t *testing.T) {
	base := Ctx(context.Background(), slog.String("a", "1"))
	left := Ctx(base, slog.String("b", "2"))
	right := Ctx(base, slog.String("c", "3"))

	la := left.Value(attrKey).([]slog.Attr)
	ra := right.Value(attrKey).([]slog.Attr)
	assert.Equal(t, "b", la[1].Key)
	assert.Equal(t, "c", ra[1].Key)
}

func TestWithAttrsKeepsContextHandler(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "json", slog.LevelInfo).With("component", "poller")
	l.InfoContext(Ctx(context.Background(), slog.String("poll_id", "x")), "tick")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "poller", entry["component"])
	assert.Equal(t, "x", entry["poll_id"])
}

func TestSetupTextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "text", slog.LevelWarn)
	l.Info("hidden")
	l.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.True(t, strings.Contains(out, "key=value"), out)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
