package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Stream outcomes recorded on tradeai.stream.outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
	OutcomeDetached  = "detached"
)

// Instruments are the stream counters shared by every conversation
type Instruments struct {
	chunks   metric.Int64Counter
	stale    metric.Int64Counter
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

// NewInstruments creates the stream instruments on meter. A nil meter or a failed
// instrument falls back to a no-op so callers never branch on telemetry.
func NewInstruments(meter metric.Meter, logger *slog.Logger) *Instruments {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(serviceName)
	}
	if logger == nil {
		logger = slog.Default()
	}
	fallback := noop.NewMeterProvider().Meter(serviceName)

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Warn("failed to create counter", "name", name, "error", err)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	duration, err := meter.Float64Histogram(
		"tradeai.stream.duration",
		metric.WithDescription("Streaming response duration in milliseconds"),
	)
	if err != nil {
		logger.Warn("failed to create histogram", "name", "tradeai.stream.duration", "error", err)
		duration, _ = fallback.Float64Histogram("tradeai.stream.duration")
	}

	return &Instruments{
		chunks:   counter("tradeai.stream.chunks", "Stream chunks applied to an in-flight message"),
		stale:    counter("tradeai.stream.stale_chunks", "Stream chunks dropped after cancellation or detach"),
		outcomes: counter("tradeai.stream.outcomes", "Streaming responses by terminal outcome"),
		duration: duration,
	}
}

// Chunk counts one applied chunk
func (i *Instruments) Chunk(ctx context.Context) {
	i.chunks.Add(ctx, 1)
}

// StaleChunk counts one dropped chunk
func (i *Instruments) StaleChunk(ctx context.Context) {
	i.stale.Add(ctx, 1)
}

// Outcome records how a stream ended and how long it ran
func (i *Instruments) Outcome(ctx context.Context, outcome string, ms float64) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	i.outcomes.Add(ctx, 1, attrs)
	i.duration.Record(ctx, ms, attrs)
}
