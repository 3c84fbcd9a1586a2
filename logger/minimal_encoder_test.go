package logger

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(str string) string {
	return ansiRegex.ReplaceAllString(str, "")
}

func encode(t *testing.T, enc *minimalEncoder, entry zapcore.Entry, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(entry, fields)
	require.NoError(t, err)
	return stripANSI(buf.String())
}

func TestMinimalEncoderNeverDiscardsFields(t *testing.T) {
	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Now(),
		LoggerName: "lifecycle",
		Message:    "Completion shown",
	}

	tests := []struct {
		field    zapcore.Field
		mustFind string
	}{
		{zap.String("uri", "file:///tmp/a.go"), "uri=file:///tmp/a.go"},
		{zap.Bool("auto_redisplay", true), "auto_redisplay=true"},
		{zap.Float64("confidence", 0.75), "confidence=0.75"},
		{zap.Int("critical_count", 999), "critical_count=999"},
		{zap.Int32("int32_field", 42), "int32_field=42"},
		{zap.Uint64(FieldRequestID, 12), "12"},
		{zap.Int64(FieldDurationMS, 48), "48ms"},
		{zap.Int(FieldTextChars, 6), "6 chars"},
		{zap.Duration("timeout", 2 * time.Second), "timeout=2s"},
		{zap.String("error", "provider refused"), "error=provider refused"},
	}

	var fields []zapcore.Field
	for _, tt := range tests {
		fields = append(fields, tt.field)
	}
	out := encode(t, newMinimalEncoder(), entry, fields...)

	for _, tt := range tests {
		assert.Contains(t, out, tt.mustFind, "field silently discarded: %s", tt.mustFind)
	}
}

func TestMinimalEncoderTransitionFields(t *testing.T) {
	entry := zapcore.Entry{Level: zapcore.DebugLevel, Time: time.Now(), LoggerName: "lifecycle.machine", Message: "transition"}
	out := encode(t, newMinimalEncoder(), entry,
		zap.String(FieldFrom, "displaying"),
		zap.String(FieldTo, "accepting"),
	)

	assert.Contains(t, out, "displaying→accepting")
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "l.machine")
}

func TestMinimalEncoderKeepsWithFields(t *testing.T) {
	enc := newMinimalEncoder()
	clone := enc.Clone().(*minimalEncoder)
	clone.AddString(FieldSessionID, "abc-123")

	out := encode(t, clone, zapcore.Entry{Time: time.Now(), Message: "session opened"})
	assert.Contains(t, out, "abc-123")

	original := encode(t, enc, zapcore.Entry{Time: time.Now(), Message: "session opened"})
	assert.NotContains(t, original, "abc-123")
}

func TestLevelRendering(t *testing.T) {
	enc := newMinimalEncoder()
	tests := []struct {
		level zapcore.Level
		want  string
	}{
		{zapcore.WarnLevel, "WARN"},
		{zapcore.ErrorLevel, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			out := encode(t, enc, zapcore.Entry{Level: tt.level, Time: time.Now(), Message: "x"})
			assert.Contains(t, out, tt.want)
		})
	}

	info := encode(t, enc, zapcore.Entry{Level: zapcore.InfoLevel, Time: time.Now(), Message: "quiet"})
	assert.False(t, strings.Contains(info, "INFO"))
}

func TestBracketMarkersKeepText(t *testing.T) {
	out := stripANSI(colorizeMessage("dropped [req:4] as [stale]"))
	assert.Equal(t, "dropped [req:4] as [stale]", out)
}

func TestSetTheme(t *testing.T) {
	defer SetTheme("everforest")

	SetTheme("gruvbox")
	assert.Equal(t, "gruvbox", CurrentTheme())

	SetTheme("solarized")
	assert.Equal(t, "gruvbox", CurrentTheme(), "unknown themes are ignored")
}

func TestAbbreviateName(t *testing.T) {
	assert.Equal(t, "l.machine", abbreviateName("lifecycle.machine"))
	assert.Equal(t, "server", abbreviateName("server"))
}
