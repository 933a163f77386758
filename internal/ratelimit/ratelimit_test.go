package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_PerMinuteCap(t *testing.T) {
	l := NewLimiter(map[string]Limits{
		"create_order:engine": {PerMinute: 3, PerHour: 100},
	}, nil)

	for i := 0; i < 3; i++ {
		check := l.Allow("create_order", "engine")
		assert.True(t, check.Allowed, "call %d should pass", i)
	}

	check := l.Allow("create_order", "engine")
	assert.False(t, check.Allowed)
	assert.Greater(t, check.Wait, time.Duration(0))
	assert.Contains(t, check.Reason, "per-minute")
}

func TestLimiter_MinCooldown(t *testing.T) {
	l := NewLimiter(map[string]Limits{
		"": {PerMinute: 60, PerHour: 1000, MinCooldown: 100 * time.Millisecond},
	}, nil)

	assert.True(t, l.Allow("cancel_order", "reconciler").Allowed)

	check := l.Allow("cancel_order", "reconciler")
	assert.False(t, check.Allowed)
	assert.Contains(t, check.Reason, "cooldown")

	time.Sleep(110 * time.Millisecond)
	assert.True(t, l.Allow("cancel_order", "reconciler").Allowed)
}

func TestLimiter_BucketsAreIndependent(t *testing.T) {
	l := NewLimiter(map[string]Limits{
		"create_order:engine": {PerMinute: 1, PerHour: 100},
	}, nil)

	assert.True(t, l.Allow("create_order", "engine").Allowed)
	assert.False(t, l.Allow("create_order", "engine").Allowed)

	// Different role, different bucket, default limits
	assert.True(t, l.Allow("create_order", "operator").Allowed)
	// Different tool entirely
	assert.True(t, l.Allow("get_orders", "engine").Allowed)
}

func TestLimiter_WaitBlocksUntilAllowed(t *testing.T) {
	l := NewLimiter(map[string]Limits{
		"": {PerMinute: 600, PerHour: 10000, MinCooldown: 50 * time.Millisecond},
	}, nil)

	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "create_order", "engine"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "create_order", "engine"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := NewLimiter(map[string]Limits{
		"": {PerMinute: 1, PerHour: 1, MinCooldown: time.Hour},
	}, nil)

	require.NoError(t, l.Wait(context.Background(), "create_order", "engine"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "create_order", "engine")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
