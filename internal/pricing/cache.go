// Package pricing resolves instrument prices through a TTL cache and sizes
// fixed-budget orders.
package pricing

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/arjunrk/bsewatch/internal/model"
)

// Lookup resolves a price for an instrument. A nil quote with a nil error
// means the instrument is unrecognized.
type Lookup interface {
	Quote(ctx context.Context, scripCode int64, symbol string) (*model.PriceQuote, error)
}

// LookupFunc is a function adapter for Lookup.
type LookupFunc func(ctx context.Context, scripCode int64, symbol string) (*model.PriceQuote, error)

func (f LookupFunc) Quote(ctx context.Context, scripCode int64, symbol string) (*model.PriceQuote, error) {
	return f(ctx, scripCode, symbol)
}

type entry struct {
	quote     *model.PriceQuote // nil when the lookup failed
	fetchedAt time.Time
}

// Cache memoizes price lookups per (scripCode, symbol) key for a TTL window.
// Failed lookups occupy the slot for the full window too, so an unresolvable
// instrument does not hammer the price source on every poll.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry

	ttl    time.Duration
	lookup Lookup
	logger *slog.Logger
	now    func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock overrides the cache clock.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

// NewCache creates a price cache in front of the given lookup.
func NewCache(ttl time.Duration, lookup Lookup, opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		lookup:  lookup,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Price returns the cached quote for the instrument if the entry is still
// inside the TTL window, otherwise performs a fresh lookup and caches the
// result. A nil return means the price is currently unresolvable.
func (c *Cache) Price(ctx context.Context, scripCode int64, symbol string) (*model.PriceQuote, error) {
	key := cacheKey(scripCode, symbol)
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Sub(e.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return e.quote, nil
	}
	c.mu.Unlock()

	quote, err := c.lookup.Quote(ctx, scripCode, symbol)
	if err != nil {
		c.logger.Debug("price lookup failed", "scrip", scripCode, "symbol", symbol, "err", err)
		quote = nil
	}
	if quote != nil {
		quote.FetchedAt = now
	}

	// Store the result either way; negative results hold the slot for the
	// TTL window.
	c.mu.Lock()
	c.entries[key] = entry{quote: quote, fetchedAt: now}
	c.mu.Unlock()

	return quote, nil
}

// Len returns the number of occupied cache slots, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func cacheKey(scripCode int64, symbol string) string {
	return strconv.FormatInt(scripCode, 10) + ":" + symbol
}
