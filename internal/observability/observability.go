// Package observability wires the Core's structured-logging and metrics
// surface onto go.opentelemetry.io/otel, the teacher's direct dependency
// for this concern, bridged to log/slog via otelslog so every existing
// call site that already takes a *slog.Logger keeps working unchanged.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Counters are the named instruments spec §6 requires the Core emit.
type Counters struct {
	MessagesSent    metric.Int64Counter
	FailoverCount   metric.Int64Counter
	QueueDepth      metric.Int64UpDownCounter
	DecryptFailures metric.Int64Counter
	BatchFlushes    metric.Int64Counter
}

// Provider owns the LoggerProvider/MeterProvider pair for the process
// lifetime and exposes the bridged slog.Logger and Counters built on top
// of them.
type Provider struct {
	loggerProvider *sdklog.LoggerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	Logger         *slog.Logger
	Counters       Counters
	Tracer         trace.Tracer
}

// New builds a Provider with in-process LoggerProvider, MeterProvider and
// TracerProvider instances. No exporter is attached, here or anywhere else
// in this repository, so logs, metrics and spans stay in process.
func New(serviceName string) (*Provider, error) {
	loggerProvider := sdklog.NewLoggerProvider()
	handler := otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(loggerProvider))
	logger := slog.New(handler)

	meterProvider := sdkmetric.NewMeterProvider()
	meter := meterProvider.Meter(serviceName)

	tracerProvider := sdktrace.NewTracerProvider()
	tracer := tracerProvider.Tracer(serviceName)

	messagesSent, err := meter.Int64Counter("messages_sent",
		metric.WithDescription("messages successfully handed to a transport"))
	if err != nil {
		return nil, err
	}
	failoverCount, err := meter.Int64Counter("failover_count",
		metric.WithDescription("relay failover events triggered"))
	if err != nil {
		return nil, err
	}
	queueDepth, err := meter.Int64UpDownCounter("queue_depth",
		metric.WithDescription("current outbound queue depth across sessions"))
	if err != nil {
		return nil, err
	}
	decryptFailures, err := meter.Int64Counter("decrypt_failures",
		metric.WithDescription("AEAD open failures"))
	if err != nil {
		return nil, err
	}
	batchFlushes, err := meter.Int64Counter("batch_flushes",
		metric.WithDescription("read-receipt batches flushed"))
	if err != nil {
		return nil, err
	}

	return &Provider{
		loggerProvider: loggerProvider,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		Logger:         logger,
		Tracer:         tracer,
		Counters: Counters{
			MessagesSent:    messagesSent,
			FailoverCount:   failoverCount,
			QueueDepth:      queueDepth,
			DecryptFailures: decryptFailures,
			BatchFlushes:    batchFlushes,
		},
	}, nil
}

// Shutdown flushes and releases the LoggerProvider, MeterProvider, and
// TracerProvider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.loggerProvider.Shutdown(ctx); err != nil {
		return err
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return p.meterProvider.Shutdown(ctx)
}
