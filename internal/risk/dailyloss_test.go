package risk

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestDailyLossCap(t *testing.T, limit float64) *DailyLossCap {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewDailyLossCap(client, limit)
}

func TestDailyLossCapAccumulatesAndBreaches(t *testing.T) {
	dlc := newTestDailyLossCap(t, 1000)
	ctx := context.Background()

	require.NoError(t, dlc.RecordLoss(ctx, 400))
	breached, total, err := dlc.Breached(ctx)
	require.NoError(t, err)
	require.False(t, breached)
	require.Equal(t, 400.0, total)

	require.NoError(t, dlc.RecordLoss(ctx, 700))
	breached, total, err = dlc.Breached(ctx)
	require.NoError(t, err)
	require.True(t, breached)
	require.Equal(t, 1100.0, total)
}

func TestDailyLossCapIgnoresNonPositiveAmounts(t *testing.T) {
	dlc := newTestDailyLossCap(t, 1000)
	ctx := context.Background()

	require.NoError(t, dlc.RecordLoss(ctx, -50))
	breached, _, err := dlc.Breached(ctx)
	require.NoError(t, err)
	require.False(t, breached)
}

func TestDailyLossCapStartsUnbreached(t *testing.T) {
	dlc := newTestDailyLossCap(t, 1000)
	breached, total, err := dlc.Breached(context.Background())
	require.NoError(t, err)
	require.False(t, breached)
	require.Equal(t, 0.0, total)
}
