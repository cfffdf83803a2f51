package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("s1"))
	require.True(t, rl.Allow("s1"))
	require.False(t, rl.Allow("s1"))
	require.True(t, rl.Allow("s2"))

	now = now.Add(1100 * time.Millisecond)
	require.True(t, rl.Allow("s1"))

	rl.Forget("s1")
	require.True(t, rl.Allow("s1"))
	require.True(t, rl.Allow("s1"))
	require.False(t, rl.Allow("s1"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	for range 100 {
		require.True(t, rl.Allow("s1"))
	}
}
