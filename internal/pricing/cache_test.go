package pricing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"positionscope/internal/model"
)

type fakeOracle struct {
	calls  int64
	delay  time.Duration
	quotes map[string]model.PriceQuote
	err    error
}

func (f *fakeOracle) GetPrice(_ context.Context, tokenID string) (model.PriceQuote, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return model.PriceQuote{}, f.err
	}
	quote, ok := f.quotes[tokenID]
	if !ok {
		return model.UnavailableQuote(tokenID), nil
	}
	return quote, nil
}

func quoteUSD(tokenID, usd string) model.PriceQuote {
	return model.PriceQuote{
		TokenID:   tokenID,
		USD:       decimal.RequireFromString(usd),
		Source:    "test",
		Available: true,
	}
}

func TestCacheServesFreshEntries(t *testing.T) {
	oracle := &fakeOracle{quotes: map[string]model.PriceQuote{"tok": quoteUSD("tok", "1.5")}}
	cache := NewCache(oracle, time.Minute)

	for i := 0; i < 5; i++ {
		quote, err := cache.GetPrice(context.Background(), "tok")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !quote.Available || !quote.USD.Equal(decimal.RequireFromString("1.5")) {
			t.Fatalf("quote = %+v", quote)
		}
	}
	if calls := atomic.LoadInt64(&oracle.calls); calls != 1 {
		t.Fatalf("oracle called %d times, want 1", calls)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	oracle := &fakeOracle{quotes: map[string]model.PriceQuote{"tok": quoteUSD("tok", "2")}}
	cache := NewCache(oracle, time.Minute)

	current := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return current }

	if _, err := cache.GetPrice(context.Background(), "tok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A newer quote upstream replaces the entry once the TTL lapses.
	oracle.quotes["tok"] = quoteUSD("tok", "3")
	current = current.Add(2 * time.Minute)

	quote, err := cache.GetPrice(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !quote.USD.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("quote after expiry = %s, want refreshed 3", quote.USD)
	}
	if calls := atomic.LoadInt64(&oracle.calls); calls != 2 {
		t.Fatalf("oracle called %d times, want 2", calls)
	}
}

func TestCacheCachesUnavailableQuotes(t *testing.T) {
	oracle := &fakeOracle{}
	cache := NewCache(oracle, time.Minute)

	for i := 0; i < 3; i++ {
		quote, err := cache.GetPrice(context.Background(), "unknown")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if quote.Available {
			t.Fatalf("quote should be unavailable: %+v", quote)
		}
	}
	if calls := atomic.LoadInt64(&oracle.calls); calls != 1 {
		t.Fatalf("oracle called %d times, want 1", calls)
	}
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	oracle := &fakeOracle{
		delay:  50 * time.Millisecond,
		quotes: map[string]model.PriceQuote{"tok": quoteUSD("tok", "1")},
	}
	cache := NewCache(oracle, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetPrice(context.Background(), "tok"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls := atomic.LoadInt64(&oracle.calls); calls != 1 {
		t.Fatalf("oracle called %d times, want 1", calls)
	}
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	oracle := &fakeOracle{err: &model.RPCError{Transient: true, Err: context.DeadlineExceeded}}
	cache := NewCache(oracle, time.Minute)

	if _, err := cache.GetPrice(context.Background(), "tok"); err == nil {
		t.Fatalf("expected error")
	}

	oracle.err = nil
	oracle.quotes = map[string]model.PriceQuote{"tok": quoteUSD("tok", "4")}

	quote, err := cache.GetPrice(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !quote.Available {
		t.Fatalf("error must not be cached as an unavailable quote")
	}
}
