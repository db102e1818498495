package verify

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource reports the current ETH/USD price.
type PriceSource interface {
	EtherPrice(ctx context.Context) (decimal.Decimal, error)
}

// PriceCache memoizes a PriceSource for ttl. A failed refresh falls back to the last good price.
type PriceCache struct {
	source PriceSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	value   decimal.Decimal
	fetched time.Time
}

func NewPriceCache(source PriceSource, ttl time.Duration) *PriceCache {
	return &PriceCache{source: source, ttl: ttl, now: time.Now}
}

// Get returns the cached price, refreshing it once the ttl has passed.
func (c *PriceCache) Get(ctx context.Context) (decimal.Decimal, error) {
	c.mu.RLock()
	value, fetched := c.value, c.fetched
	c.mu.RUnlock()
	if !fetched.IsZero() && c.now().Sub(fetched) < c.ttl {
		return value, nil
	}

	fresh, err := c.source.EtherPrice(ctx)
	if err != nil {
		if !fetched.IsZero() {
			return value, nil
		}
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.value = fresh
	c.fetched = c.now()
	c.mu.Unlock()
	return fresh, nil
}
