package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestProviderExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	path := filepath.Join(t.TempDir(), "spans.jsonl")
	p, err := NewProvider("ghostwrite-test", path)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "completion.fetch",
		AttrStrategy.String("fast"),
		AttrCacheHit.Bool(false),
		AttrTokens.Int(42),
	)
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"Name":"completion.fetch"`)
	assert.Contains(t, out, "ghostwrite.strategy")
	assert.Contains(t, out, "ghostwrite-test")
}

func TestProviderBadPath(t *testing.T) {
	_, err := NewProvider("ghostwrite-test", filepath.Join(t.TempDir(), "missing", "spans.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open trace file")
}

func TestStartSpanWithoutProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(noop.NewTracerProvider())
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartSpan(context.Background(), "completion.fetch")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}
