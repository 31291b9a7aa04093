package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsUpToBurstThenRejects(t *testing.T) {
	l := NewRateLimiter(time.Minute)
	for i := 0; i < defaultBurst; i++ {
		assert.True(t, l.Allow("stripe", "1.1.1.1"))
	}
	assert.False(t, l.Allow("stripe", "1.1.1.1"))
}

func TestRateLimiter_DistinctKeysDoNotShareBudget(t *testing.T) {
	l := NewRateLimiter(time.Minute)
	for i := 0; i < defaultBurst; i++ {
		require.True(t, l.Allow("stripe", "1.1.1.1"))
	}
	assert.True(t, l.Allow("stripe", "2.2.2.2"))
	assert.True(t, l.Allow("paypal", "1.1.1.1"))
}

func TestRateLimiter_SweepEvictsIdleBuckets(t *testing.T) {
	l := NewRateLimiter(10 * time.Millisecond)
	l.Allow("stripe", "1.1.1.1")
	assert.Len(t, l.buckets, 1)
	time.Sleep(20 * time.Millisecond)
	l.Sweep()
	assert.Len(t, l.buckets, 0)
}
