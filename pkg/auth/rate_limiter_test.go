package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterExhaustsBucket(t *testing.T) {
	// An hour-long refill keeps the bucket from replenishing mid-test.
	l := NewTokenBucketLimiter(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := NewTokenBucketLimiter(1, time.Hour)
	ctx := context.Background()

	allowed, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiterReset(t *testing.T) {
	l := NewTokenBucketLimiter(1, time.Hour)
	ctx := context.Background()

	_, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)

	allowed, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, l.Reset(ctx, "10.0.0.1"))

	allowed, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiterRefillsOverTime(t *testing.T) {
	l := NewTokenBucketLimiter(1, 20*time.Millisecond)
	ctx := context.Background()

	allowed, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, allowed)

	time.Sleep(50 * time.Millisecond)

	allowed, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}
