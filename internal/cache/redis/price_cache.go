package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// priceTTL bounds staleness of cached price previews. Executed operations
// always recompute the price from the series parameters; the cache only
// serves read endpoints.
const priceTTL = 5 * time.Second

// PriceCache caches accreted series prices in Redis hashes. Each series price
// is stored at key "price:{seriesID}" with fields "price" (scaled integer)
// and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(seriesID uint32) string {
	return fmt.Sprintf("price:%d", seriesID)
}

// SetPrice stores the latest computed price and timestamp for a series.
func (pc *PriceCache) SetPrice(ctx context.Context, seriesID uint32, price int64, ts time.Time) error {
	key := priceKey(seriesID)
	fields := map[string]interface{}{
		"price": strconv.FormatInt(price, 10),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price for series %d: %w", seriesID, err)
	}
	return nil
}

// GetPrice retrieves the cached price and timestamp for a series.
// It returns domain.ErrNotFound when no fresh price is cached.
func (pc *PriceCache) GetPrice(ctx context.Context, seriesID uint32) (int64, time.Time, error) {
	key := priceKey(seriesID)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price for series %d: %w", seriesID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseInt(priceStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price for series %d: %w", seriesID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts for series %d: %w", seriesID, err)
	}

	return price, time.Unix(0, tsNano), nil
}
