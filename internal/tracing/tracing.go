// Package tracing wires OpenTelemetry spans around provider calls.
package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/version"
)

const tracerName = "github.com/teranos/ghostwrite/completion"

// Span attribute keys
var (
	AttrRequestID = attribute.Key("ghostwrite.request.id")
	AttrSessionID = attribute.Key("ghostwrite.session.id")
	AttrStrategy  = attribute.Key("ghostwrite.strategy")
	AttrLanguage  = attribute.Key("ghostwrite.language")
	AttrModel     = attribute.Key("ghostwrite.model")
	AttrCacheHit  = attribute.Key("ghostwrite.cache.hit")
	AttrTokens    = attribute.Key("ghostwrite.tokens")
	AttrChars     = attribute.Key("ghostwrite.chars")
)

// Provider owns the SDK tracer provider and the file it exports to.
type Provider struct {
	provider *sdktrace.TracerProvider
	closer   io.Closer
}

// NewProvider exports spans as JSON lines to path, or to stderr when path is
// empty, and installs itself as the global tracer provider.
func NewProvider(serviceName, path string) (*Provider, error) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer
	)
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "open trace file %s", path)
		}
		w, closer = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, errors.Wrap(err, "create trace exporter")
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version.Get().Version),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create trace resource")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return &Provider{provider: provider, closer: closer}, nil
}

// Shutdown flushes pending spans and closes the trace file.
func (p *Provider) Shutdown(ctx context.Context) error {
	err := p.provider.Shutdown(ctx)
	if p.closer != nil {
		if cerr := p.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Tracer returns the completion tracer from the global provider. Without
// NewProvider it is a no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on the completion tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}
