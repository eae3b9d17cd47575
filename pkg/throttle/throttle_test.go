package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvery_Paces(t *testing.T) {
	th := Every(20*time.Millisecond, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, th.Wait(ctx))
	}
	require.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestEvery_RespectsContext(t *testing.T) {
	th := Every(time.Hour, 1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, th.Wait(ctx))
	cancel()
	require.Error(t, th.Wait(ctx))
}

func TestNoopAndZeroInterval(t *testing.T) {
	require.IsType(t, noop{}, Every(0, 1))
	require.NoError(t, Noop().Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, Noop().Wait(ctx))
}
