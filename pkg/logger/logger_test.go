package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" Warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("", true))
	assert.Equal(t, FormatText, ParseFormat("", false))
	assert.Equal(t, FormatText, ParseFormat("text", true))
	assert.Equal(t, FormatJSON, ParseFormat("JSON", false))
}

func TestNew_JSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{
		Output: &buf,
		Level:  slog.LevelWarn,
		Format: FormatJSON,
		Attrs:  []any{"app", "engagement-hub"},
	})

	log.Info("dropped")
	log.Warn("kept", "student_id", "s1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "engagement-hub", rec["app"])
	assert.Equal(t, "s1", rec["student_id"])
}
