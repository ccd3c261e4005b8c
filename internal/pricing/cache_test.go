package pricing

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arjunrk/bsewatch/internal/model"
)

func TestCache_TTL(t *testing.T) {
	var lookups atomic.Int32
	lookup := LookupFunc(func(ctx context.Context, scrip int64, symbol string) (*model.PriceQuote, error) {
		lookups.Add(1)
		return &model.PriceQuote{Price: 450, Source: "test"}, nil
	})

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c := NewCache(30*time.Second, lookup, WithClock(clock))
	ctx := context.Background()

	if _, err := c.Price(ctx, 500001, "ACME"); err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if lookups.Load() != 1 {
		t.Fatalf("lookups = %d, want 1", lookups.Load())
	}

	// Just inside the window: served from cache.
	now = now.Add(29*time.Second + 999*time.Millisecond)
	q, _ := c.Price(ctx, 500001, "ACME")
	if lookups.Load() != 1 {
		t.Errorf("lookup fired inside TTL window: %d", lookups.Load())
	}
	if q == nil || q.Price != 450 {
		t.Errorf("cached quote = %+v, want price 450", q)
	}

	// Just past the window: refetched.
	now = now.Add(2 * time.Millisecond)
	if _, err := c.Price(ctx, 500001, "ACME"); err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if lookups.Load() != 2 {
		t.Errorf("lookups = %d after TTL expiry, want 2", lookups.Load())
	}
}

func TestCache_NegativeResultCached(t *testing.T) {
	var lookups atomic.Int32
	lookup := LookupFunc(func(ctx context.Context, scrip int64, symbol string) (*model.PriceQuote, error) {
		lookups.Add(1)
		return nil, nil // unresolvable instrument
	})

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	c := NewCache(30*time.Second, lookup, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	q, err := c.Price(ctx, 599999, "")
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if q != nil {
		t.Errorf("quote = %+v, want nil for unresolvable instrument", q)
	}

	// Repeated calls inside the window must not hit the source again.
	for i := 0; i < 5; i++ {
		c.Price(ctx, 599999, "")
	}
	if lookups.Load() != 1 {
		t.Errorf("lookups = %d, want 1 (negative result cached)", lookups.Load())
	}

	now = now.Add(31 * time.Second)
	c.Price(ctx, 599999, "")
	if lookups.Load() != 2 {
		t.Errorf("lookups = %d after expiry, want 2", lookups.Load())
	}
}

func TestCache_KeyIncludesSymbol(t *testing.T) {
	var lookups atomic.Int32
	lookup := LookupFunc(func(ctx context.Context, scrip int64, symbol string) (*model.PriceQuote, error) {
		lookups.Add(1)
		return &model.PriceQuote{Price: 100}, nil
	})

	c := NewCache(time.Minute, lookup)
	ctx := context.Background()

	c.Price(ctx, 500001, "ACME")
	c.Price(ctx, 500001, "ACMELTD")

	if lookups.Load() != 2 {
		t.Errorf("lookups = %d, want 2 (distinct composite keys)", lookups.Load())
	}
	if c.Len() != 2 {
		t.Errorf("cache slots = %d, want 2", c.Len())
	}
}

func TestCache_LookupErrorCachedAsNegative(t *testing.T) {
	var lookups atomic.Int32
	lookup := LookupFunc(func(ctx context.Context, scrip int64, symbol string) (*model.PriceQuote, error) {
		lookups.Add(1)
		return nil, context.DeadlineExceeded
	})

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	c := NewCache(30*time.Second, lookup, WithClock(func() time.Time { return now }))

	q, err := c.Price(context.Background(), 500001, "ACME")
	if err != nil {
		t.Fatalf("Price surfaced lookup error as fatal: %v", err)
	}
	if q != nil {
		t.Errorf("quote = %+v, want nil after failed lookup", q)
	}

	c.Price(context.Background(), 500001, "ACME")
	if lookups.Load() != 1 {
		t.Errorf("failed lookup not cached: %d calls", lookups.Load())
	}
}
