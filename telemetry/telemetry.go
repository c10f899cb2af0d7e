// Package telemetry configures OpenTelemetry tracing for autodoc runs.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config selects the span exporter.
type Config struct {
	// Exporter is "none" (or empty) for a noop provider, or "stdout".
	Exporter string
	// Writer receives stdout spans; defaults to stderr so they do not mix
	// with command output.
	Writer io.Writer
}

// ShutdownFunc flushes and stops the installed provider.
type ShutdownFunc func(context.Context) error

// Setup installs a global TracerProvider and returns its shutdown function.
func Setup(_ context.Context, cfg Config) (ShutdownFunc, error) {
	noopShutdown := func(context.Context) error { return nil }

	switch cfg.Exporter {
	case "", "none", "noop":
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	case "stdout":
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		return tp.Shutdown, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}
