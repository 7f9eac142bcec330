package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInitLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := filepath.Join(t.TempDir(), "logs")
	logger, closer, err := InitLogger(dir, true)
	require.NoError(t, err)

	logger.Debug("stream started", "thread_id", "t-1")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "tradeai.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"thread_id":"t-1"`)
}

func TestInstruments(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	inst := NewInstruments(mp.Meter("test"), nil)
	inst.Chunk(ctx)
	inst.Chunk(ctx)
	inst.StaleChunk(ctx)
	inst.Outcome(ctx, OutcomeCancelled, 12)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["tradeai.stream.chunks"])
	assert.Equal(t, int64(1), sums["tradeai.stream.stale_chunks"])
	assert.Equal(t, int64(1), sums["tradeai.stream.outcomes"])
}

func TestNewInstrumentsNilMeter(t *testing.T) {
	inst := NewInstruments(nil, nil)
	assert.NotPanics(t, func() {
		inst.Chunk(context.Background())
		inst.Outcome(context.Background(), OutcomeCompleted, 1)
	})
}

func TestInitTelemetryDisabled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	tracer, meter, cleanup, err := InitTelemetry(context.Background(), Settings{LogDir: dir})
	require.NoError(t, err)
	require.NotNil(t, tracer)
	require.NotNil(t, meter)
	cleanup()

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "nothing is written when disabled")
}

func TestInitTelemetryExportsSpans(t *testing.T) {
	dir := t.TempDir()
	tracer, meter, cleanup, err := InitTelemetry(context.Background(), Settings{
		LogDir:            dir,
		Enabled:           true,
		MetricInterval:    time.Hour,
		TraceBatchTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "conversation.stream")
	span.End()
	NewInstruments(meter, nil).Chunk(context.Background())
	cleanup()

	traces, err := os.ReadFile(filepath.Join(dir, "tradeai_traces.log"))
	require.NoError(t, err)
	assert.Contains(t, string(traces), "conversation.stream")

	metrics, err := os.ReadFile(filepath.Join(dir, "tradeai_metrics.log"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "tradeai.stream.chunks")
}
