package price

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryEntry struct {
	value   decimal.Decimal
	expires time.Time
}

// MemoryCache is an in-process read-through cache in front of an Oracle.
type MemoryCache struct {
	next Oracle
	ttl  time.Duration
	now  func() time.Time

	mu   sync.RWMutex
	data map[string]memoryEntry
}

func NewMemoryCache(next Oracle, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		next: next,
		ttl:  ttl,
		now:  time.Now,
		data: make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) Price(ctx context.Context, symbol string, chainID uint64) (decimal.Decimal, error) {
	key := fmt.Sprintf("%d:%s", chainID, normalize(symbol))

	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expires) {
		return entry.value, nil
	}

	value, err := c.next.Price(ctx, symbol, chainID)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.data[key] = memoryEntry{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return value, nil
}
