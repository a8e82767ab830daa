package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitDelaysSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://test.com/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://TEST.com/b"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, 1, l.Hosts())
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "https://a.test/"))
	require.Error(t, l.Wait(ctx, "https://a.test/again"))
	require.NoError(t, l.Wait(ctx, "https://b.test/"))
	assert.Equal(t, 2, l.Hosts())
}

func TestLimiterUnlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for range 50 {
		require.NoError(t, l.Wait(context.Background(), "https://example.com/"))
	}
}

func TestLimiterBadURL(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1})
	require.ErrorContains(t, l.Wait(context.Background(), "://bad"), "parse url")
	assert.Zero(t, l.Hosts())
}
