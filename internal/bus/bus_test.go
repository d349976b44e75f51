package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client), mr
}

func TestPublishRead(t *testing.T) {
	b, mr := setupTestBus(t)
	defer mr.Close()

	ctx := context.Background()
	err := Publish(ctx, b, KeyBTCSentiment, 0.42, "sentiment-agent", 0.9)
	require.NoError(t, err)

	sig, ok := Read(ctx, b, KeyBTCSentiment)
	require.True(t, ok)
	assert.Equal(t, "sentiment-agent", sig.Source)
	assert.InDelta(t, 0.9, sig.Confidence, 1e-9)

	var value float64
	require.NoError(t, json.Unmarshal(sig.Value, &value))
	assert.InDelta(t, 0.42, value, 1e-9)
}

func TestReadAbsentKeyIsNoSignal(t *testing.T) {
	b, mr := setupTestBus(t)
	defer mr.Close()

	_, ok := Read(context.Background(), b, "intel:never_published")
	assert.False(t, ok)
}

func TestReadAfterTTLIsNoSignal(t *testing.T) {
	b, mr := setupTestBus(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, Publish(ctx, b, KeyVIXLevel, 18.5, "vix-agent", 1.0))

	mr.FastForward(SignalTTL + time.Second)

	_, ok := Read(ctx, b, KeyVIXLevel)
	assert.False(t, ok)
}

func TestReadValueUnmarshalsIntoDestination(t *testing.T) {
	b, mr := setupTestBus(t)
	defer mr.Close()

	type heat struct {
		Level float64 `json:"level"`
	}

	ctx := context.Background()
	require.NoError(t, Publish(ctx, b, KeyPortfolioHeat, heat{Level: 0.85}, "autopilot", 1.0))

	var out heat
	ok := ReadValue(ctx, b, KeyPortfolioHeat, &out)
	require.True(t, ok)
	assert.InDelta(t, 0.85, out.Level, 1e-9)
}

func TestReadOnMalformedPayloadIsNoSignal(t *testing.T) {
	b, mr := setupTestBus(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, mr.Set(KeySPYTrend, "not-json-envelope"))

	_, ok := Read(ctx, b, KeySPYTrend)
	assert.False(t, ok)
}
