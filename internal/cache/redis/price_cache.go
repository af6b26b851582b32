package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/infrabond/core/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each
// market's prices live in a hash at "price:market:{id}" with fields
// "yes", "no", and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID string) string {
	return "price:market:" + marketID
}

// SetPrices stores the latest YES/NO prices for a market.
func (pc *PriceCache) SetPrices(ctx context.Context, p domain.MarketPrices) error {
	fields := map[string]interface{}{
		"yes": strconv.FormatFloat(p.Yes, 'f', -1, 64),
		"no":  strconv.FormatFloat(p.No, 'f', -1, 64),
		"ts":  strconv.FormatInt(p.At.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(p.MarketID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", p.MarketID, err)
	}
	return nil
}

// GetPrices retrieves the latest prices for a market. It returns
// domain.ErrNotFound when the market has never been priced.
func (pc *PriceCache) GetPrices(ctx context.Context, marketID string) (domain.MarketPrices, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(marketID)).Result()
	if err != nil {
		return domain.MarketPrices{}, fmt.Errorf("redis: get prices %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return domain.MarketPrices{}, fmt.Errorf("prices for market %s: %w", marketID, domain.ErrNotFound)
	}

	p := domain.MarketPrices{MarketID: marketID}
	if p.Yes, err = strconv.ParseFloat(vals["yes"], 64); err != nil {
		return domain.MarketPrices{}, fmt.Errorf("redis: parse yes price %s: %w", marketID, err)
	}
	if p.No, err = strconv.ParseFloat(vals["no"], 64); err != nil {
		return domain.MarketPrices{}, fmt.Errorf("redis: parse no price %s: %w", marketID, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.MarketPrices{}, fmt.Errorf("redis: parse ts %s: %w", marketID, err)
	}
	p.At = time.Unix(0, tsNano)
	return p, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
