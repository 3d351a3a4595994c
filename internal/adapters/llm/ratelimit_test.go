package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-collective/z88/internal/core"
)

func TestRateLimiter_BurstThenBlock(t *testing.T) {
	t.Parallel()
	l := NewRateLimiter(60, 2)

	assert.True(t, l.TryAcquire())
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	assert.Less(t, l.Available(), 1.0)
}

func TestRateLimiter_AcquireRespectsContext(t *testing.T) {
	t.Parallel()
	l := NewRateLimiter(1, 1)
	require.True(t, l.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_Refills(t *testing.T) {
	t.Parallel()
	l := NewRateLimiter(6000, 1) // 100 tokens per second
	require.True(t, l.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Acquire(ctx))
}

func TestLimiterRegistry(t *testing.T) {
	t.Parallel()

	disabled := NewLimiterRegistry(0)
	assert.Nil(t, disabled.Get(core.ProviderOpenAI))
	assert.NoError(t, disabled.Wait(context.Background(), core.ProviderOpenAI))

	reg := NewLimiterRegistry(60)
	a := reg.Get(core.ProviderOpenAI)
	require.NotNil(t, a)
	assert.Same(t, a, reg.Get(core.ProviderOpenAI))
	assert.NotSame(t, a, reg.Get(core.ProviderAnthropic))
	assert.InDelta(t, 10, a.Available(), 0.5)
}
