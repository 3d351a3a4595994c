package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-collective/z88/internal/config"
)

func TestInit_DisabledInstallsNoop(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Init(ctx, config.TelemetryConfig{}, "z88", "test"))

	_, span := Tracer("").Start(ctx, "noop")
	assert.False(t, span.SpanContext().IsValid(), "noop spans carry no trace id")
	span.End()

	counter, err := Meter("").Int64Counter("z88.test")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	require.NoError(t, Shutdown(ctx))
}

func TestInit_EnabledRecordsSpans(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Init(ctx, config.TelemetryConfig{Enabled: true, Stdout: true}, "z88", "test"))
	t.Cleanup(func() {
		_ = Init(ctx, config.TelemetryConfig{}, "z88", "test")
	})

	_, span := Tracer("z88/test").Start(ctx, "ritual")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, Shutdown(ctx))
	require.NoError(t, Shutdown(ctx), "second shutdown is a no-op")
}
