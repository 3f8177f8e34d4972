package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(10.0, 5, "sepolia")

	require.NotNil(t, l)
	require.NotNil(t, l.limiter)
	assert.Equal(t, "sepolia", l.network)

	assert.InDelta(t, 10.0, float64(l.limiter.Limit()), 0.001)
	assert.Equal(t, 5, l.limiter.Burst())
}

func TestNewLimiter_NonPositiveRPSDisablesLimiting(t *testing.T) {
	l := NewLimiter(0, 0, "sepolia")

	assert.Equal(t, rate.Inf, l.limiter.Limit())
	assert.Equal(t, 1, l.limiter.Burst())

	start := time.Now()
	for i := 0; i < 20; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_AllowWithinBurst(t *testing.T) {
	const burst = 5
	l := NewLimiter(100, burst, "sepolia")

	ctx := context.Background()

	for i := 0; i < burst; i++ {
		start := time.Now()
		err := l.Wait(ctx)
		elapsed := time.Since(start)

		require.NoError(t, err, "request %d should not error", i)
		assert.Less(t, elapsed, 50*time.Millisecond,
			"request %d should complete immediately, took %v", i, elapsed)
	}
}

func TestLimiter_WaitWhenExhausted(t *testing.T) {
	const (
		rps   = 10.0 // 1 token every 100ms
		burst = 1
	)
	l := NewLimiter(rps, burst, "mainnet")

	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))

	start := time.Now()
	err := l.Wait(ctx)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond,
		"should have waited for a token, but only took %v", elapsed)
}

func TestLimiter_ContextCancellation(t *testing.T) {
	l := NewLimiter(1.0, 1, "sepolia")

	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Wait(ctx)
	require.Error(t, err, "should return error when context is cancelled")
}

func TestClassifyRPCError(t *testing.T) {
	cases := map[string]error{
		"ok":            nil,
		"canceled":      fmt.Errorf("wrap: %w", context.Canceled),
		"user_rejected": errors.New("User rejected the request. (code 4001)"),
		"reverted":      errors.New("execution reverted: Only owner"),
		"timeout":       errors.New("i/o timeout"),
		"rate_limited":  errors.New("http status 429: too many requests"),
		"server_error":  errors.New("http status 502: bad gateway"),
		"network_error": errors.New("dial tcp: connection refused"),
		"client_error":  errors.New("invalid params"),
	}
	for want, err := range cases {
		assert.Equal(t, want, ClassifyRPCError(err), "error: %v", err)
	}
}
