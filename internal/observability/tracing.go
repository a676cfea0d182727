// File: internal/observability/tracing.go
package observability

import (
	"context"
	"fmt"
	"os"

	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xkilldash9x/kickstart-cli"

// Span attribute keys shared by the drivers.
var (
	AttrRunID     = attribute.Key("kickstart.run.id")
	AttrFlow      = attribute.Key("kickstart.flow")
	AttrStep      = attribute.Key("kickstart.step")
	AttrURL       = attribute.Key("kickstart.url")
	AttrPolls     = attribute.Key("kickstart.install.polls")
	AttrProduct   = attribute.Key("kickstart.product.id")
	AttrErrorKind = attribute.Key("kickstart.error.kind")
)

// TracerProvider wraps the SDK provider together with the file it exports to.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	file     *os.File
}

// NewTracerProvider exports spans as JSON lines to path and installs the
// provider globally. An empty path leaves the global no-op provider in place.
func NewTracerProvider(ctx context.Context, path, serviceName string) (*TracerProvider, error) {
	if path == "" {
		return &TracerProvider{}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider, file: f}, nil
}

// Shutdown flushes pending spans and closes the trace file.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	err := tp.provider.Shutdown(ctx)
	if cerr := tp.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Tracer returns the package tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name as a child of any span in ctx.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(AttrErrorKind.String(faults.KindOf(err).String()))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
