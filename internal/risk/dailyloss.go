package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dailyLossKeyPrefix = "risk:daily_loss:"

// DailyLossCap tracks cumulative realized losses within the current UTC
// calendar day, resetting automatically at midnight via the Redis key's
// expiry.
type DailyLossCap struct {
	redis *redis.Client
	limit float64
}

// NewDailyLossCap constructs a cap backed by redisClient, suppressing new
// entries once cumulative losses reach limit.
func NewDailyLossCap(redisClient *redis.Client, limit float64) *DailyLossCap {
	return &DailyLossCap{redis: redisClient, limit: limit}
}

func dailyLossKey(now time.Time) string {
	return dailyLossKeyPrefix + now.UTC().Format("2006-01-02")
}

// RecordLoss adds amount (positive dollar loss) to today's running total.
func (d *DailyLossCap) RecordLoss(ctx context.Context, amount float64) error {
	if amount <= 0 {
		return nil
	}
	key := dailyLossKey(time.Now())

	total, err := d.redis.IncrByFloat(ctx, key, amount).Result()
	if err != nil {
		return fmt.Errorf("risk: failed to record daily loss: %w", err)
	}
	if total == amount {
		// First write of the day: set expiry so the counter self-resets at
		// UTC midnight without a separate cron job.
		d.redis.Expire(ctx, key, 25*time.Hour)
	}
	return nil
}

// Breached reports whether today's cumulative realized loss has reached
// the configured limit.
func (d *DailyLossCap) Breached(ctx context.Context) (bool, float64, error) {
	key := dailyLossKey(time.Now())
	val, err := d.redis.Get(ctx, key).Float64()
	if err == redis.Nil {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("risk: failed to read daily loss total: %w", err)
	}
	return val >= d.limit, val, nil
}
