package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-collective/z88/internal/core"
)

func quickPolicy(n int) RetryPolicy {
	return RetryPolicy{MaxRetries: n, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestRetryPolicy_RetriesRetryable(t *testing.T) {
	t.Parallel()
	calls, notified := 0, 0
	err := quickPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return core.ErrNetwork("flaky")
		}
		return nil
	}, func(error, time.Duration) { notified++ })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, notified)
}

func TestRetryPolicy_StopsOnPermanent(t *testing.T) {
	t.Parallel()
	calls := 0
	err := quickPolicy(5).Do(context.Background(), func() error {
		calls++
		return core.ErrAuth("bad key")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, core.IsCategory(err, core.ErrCatAuth))
}

func TestRetryPolicy_Exhausts(t *testing.T) {
	t.Parallel()
	calls := 0
	err := quickPolicy(2).Do(context.Background(), func() error {
		calls++
		return core.ErrRateLimit("slow down")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestNoRetry(t *testing.T) {
	t.Parallel()
	calls := 0
	err := NoRetry().Do(context.Background(), func() error {
		calls++
		return core.ErrNetwork("down")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Nil(t, classify(core.ProviderOpenAI, nil))
	assert.ErrorIs(t, classify(core.ProviderOpenAI, context.Canceled), context.Canceled)
	assert.True(t, core.IsCategory(classify(core.ProviderOpenAI, context.DeadlineExceeded), core.ErrCatTimeout))

	dom := core.ErrValidation("X", "y")
	assert.Same(t, dom, classify(core.ProviderOpenAI, dom))

	other := classify(core.ProviderGoogle, errors.New("weird"))
	assert.True(t, core.IsCategory(other, core.ErrCatExecution))
	assert.False(t, core.IsRetryable(other))
}
