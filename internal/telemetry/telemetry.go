package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "tradeai"

func rotatingFile(logDir, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, name),
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger initializes structured logging with rotation
func InitLogger(logDir string, debug bool) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	logFile := rotatingFile(logDir, "tradeai.log")

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	// Log only to file; stdout belongs to the transcript
	handler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, logFile, nil
}

// Settings tunes the OpenTelemetry exporters
type Settings struct {
	LogDir  string
	Enabled bool
	// MetricInterval is the period of the metrics export, 10s when zero
	MetricInterval time.Duration
	// TraceBatchTimeout bounds how long finished spans wait before export, 5s when zero
	TraceBatchTimeout time.Duration
}

// InitTelemetry initializes OpenTelemetry tracing and metrics. Spans go to
// <LogDir>/tradeai_traces.log and metrics to <LogDir>/tradeai_metrics.log. With
// telemetry disabled it returns no-op providers and writes nothing.
func InitTelemetry(ctx context.Context, s Settings) (trace.Tracer, metric.Meter, func(), error) {
	if !s.Enabled {
		return tracenoop.NewTracerProvider().Tracer(serviceName), metricnoop.NewMeterProvider().Meter(serviceName), func() {}, nil
	}
	if s.MetricInterval <= 0 {
		s.MetricInterval = 10 * time.Second
	}
	if s.TraceBatchTimeout <= 0 {
		s.TraceBatchTimeout = 5 * time.Second
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := os.MkdirAll(s.LogDir, 0755); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	tp, traceFile, err := newTracerProvider(res, s)
	if err != nil {
		return nil, nil, nil, err
	}
	mp, metricsFile, err := newMeterProvider(res, s)
	if err != nil {
		_ = tp.Shutdown(ctx)
		traceFile.Close()
		return nil, nil, nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown meter provider", "error", err)
		}
		for _, f := range []*lumberjack.Logger{traceFile, metricsFile} {
			if err := f.Close(); err != nil {
				slog.Error("failed to close telemetry file", "file", f.Filename, "error", err)
			}
		}
	}

	return tp.Tracer(serviceName), mp.Meter(serviceName), cleanup, nil
}

func newTracerProvider(res *resource.Resource, s Settings) (*sdktrace.TracerProvider, *lumberjack.Logger, error) {
	file := rotatingFile(s.LogDir, "tradeai_traces.log")
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(file))
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(s.TraceBatchTimeout)),
		sdktrace.WithResource(res),
	)
	return tp, file, nil
}

func newMeterProvider(res *resource.Resource, s Settings) (*sdkmetric.MeterProvider, *lumberjack.Logger, error) {
	file := rotatingFile(s.LogDir, "tradeai_metrics.log")
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(file))
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(s.MetricInterval))),
		sdkmetric.WithResource(res),
	)
	return mp, file, nil
}
