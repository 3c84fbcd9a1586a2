package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			require.NoError(t, Initialize(tt.jsonOutput))
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Cleanup()
		})
	}
}

func TestInitializeWithLevel(t *testing.T) {
	require.NoError(t, InitializeWithLevel(false, zapcore.WarnLevel))
	assert.False(t, Logger.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.WarnLevel))
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{5, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(LevelName(tt.verbosity), func(t *testing.T) {
			assert.Equal(t, tt.want, VerbosityToLevel(tt.verbosity))
		})
	}
	assert.True(t, ShouldLogPrompts(3))
	assert.False(t, ShouldLogPrompts(2))
}

func TestFieldsFromContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), 42)
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithComponent(ctx, "provider")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{
		FieldRequestID, uint64(42),
		FieldSessionID, "sess-1",
		FieldComponent, "provider",
	}, fields)

	assert.Empty(t, FieldsFromContext(context.Background()))
}

func TestComponentAndChildLogger(t *testing.T) {
	require.NoError(t, Initialize(false))

	assert.NotNil(t, ComponentLogger("lifecycle"))
	assert.NotNil(t, ChildLogger(nil, FieldURI, "file:///x.go"))
}

func TestIDsFromContext(t *testing.T) {
	ctx := WithSessionID(WithRequestID(context.Background(), 9), "sess-9")

	id, ok := RequestIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, uint64(9), id)
	assert.Equal(t, "sess-9", SessionIDFromContext(ctx))

	_, ok = RequestIDFromContext(context.Background())
	assert.False(t, ok)
	assert.Empty(t, SessionIDFromContext(context.Background()))
}
