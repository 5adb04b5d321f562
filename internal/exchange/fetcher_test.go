package exchange

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
)

type fakeGateway struct {
	mu        sync.Mutex
	barCalls  map[string]int
	failUntil map[string]int
	failLimit int // if >0, FetchBars fails whenever limit >= failLimit
	inflight  int32
	maxSeen   int32
	delay     time.Duration
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{barCalls: make(map[string]int), failUntil: make(map[string]int)}
}

func (g *fakeGateway) FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error) {
	cur := atomic.AddInt32(&g.inflight, 1)
	for {
		max := atomic.LoadInt32(&g.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&g.maxSeen, max, cur) {
			break
		}
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	atomic.AddInt32(&g.inflight, -1)

	g.mu.Lock()
	g.barCalls[symbol]++
	calls := g.barCalls[symbol]
	failN := g.failUntil[symbol]
	g.mu.Unlock()

	if calls <= failN {
		return nil, errors.New("transient failure")
	}
	if g.failLimit > 0 && limit >= g.failLimit {
		return nil, errors.New("payload too large")
	}
	bars := make([]market.Bar, limit)
	for i := range bars {
		bars[i] = market.Bar{Close: 100, High: 101, Low: 99, Open: 100, Volume: 1}
	}
	return bars, nil
}

func (g *fakeGateway) FetchTicker(ctx context.Context, symbol string) (market.Ticker, error) {
	return market.Ticker{Symbol: symbol, Last: 100}, nil
}

func (g *fakeGateway) FetchTickers(ctx context.Context) (map[string]market.Ticker, error) {
	return map[string]market.Ticker{"BTC_USDT": {Symbol: "BTC_USDT", Last: 50000}}, nil
}

func (g *fakeGateway) ListMarkets(ctx context.Context) (map[string]MarketInfo, error) {
	return nil, nil
}

func (g *fakeGateway) TickSize(string) float64 { return 0.01 }

func (g *fakeGateway) RoundToTick(_ string, price float64) float64 {
	return RoundToTick(price, 0.01)
}

func testFetcher(gw Gateway) *Fetcher {
	return NewFetcher(gw, zerolog.Nop(), FetcherConfig{
		MaxConcurrent: 3,
		Retries:       3,
		RetryBase:     time.Millisecond,
		CallTimeout:   time.Second,
		FallbackLimit: 20,
	})
}

func TestBarsRetriesTransientFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.failUntil["AAA_USDT"] = 2
	f := testFetcher(gw)

	series, ok := f.Bars(context.Background(), "AAA_USDT", "1m", 65)
	if !ok {
		t.Fatalf("expected success after retries")
	}
	if series.Len() != 65 {
		t.Fatalf("expected 65 bars, got %d", series.Len())
	}
	if gw.barCalls["AAA_USDT"] != 3 {
		t.Fatalf("expected 3 attempts, got %d", gw.barCalls["AAA_USDT"])
	}
}

func TestBarsFallsBackToSmallerLimit(t *testing.T) {
	gw := newFakeGateway()
	gw.failLimit = 50 // any request for >= 50 bars fails
	f := testFetcher(gw)

	series, ok := f.Bars(context.Background(), "BBB_USDT", "1m", 65)
	if !ok {
		t.Fatalf("expected fallback fetch to succeed")
	}
	if series.Len() != 20 {
		t.Fatalf("expected fallback limit of 20 bars, got %d", series.Len())
	}
}

func TestBarsGivesUpAfterRetries(t *testing.T) {
	gw := newFakeGateway()
	gw.failUntil["CCC_USDT"] = 100
	f := testFetcher(gw)

	if _, ok := f.Bars(context.Background(), "CCC_USDT", "1m", 65); ok {
		t.Fatalf("expected failure for persistently broken symbol")
	}
}

func TestBarsBatchIsolatesFailures(t *testing.T) {
	gw := newFakeGateway()
	gw.failUntil["BAD_USDT"] = 100
	f := testFetcher(gw)

	out := f.BarsBatch(context.Background(), []string{"AAA_USDT", "BAD_USDT", "CCC_USDT"}, "1m", 30)
	if len(out) != 2 {
		t.Fatalf("expected 2 successful symbols, got %d", len(out))
	}
	if _, ok := out["BAD_USDT"]; ok {
		t.Fatalf("broken symbol must be absent from the batch result")
	}
}

func TestBarsBatchBoundsConcurrency(t *testing.T) {
	gw := newFakeGateway()
	gw.delay = 20 * time.Millisecond
	f := testFetcher(gw)

	symbols := make([]string, 12)
	for i := range symbols {
		symbols[i] = string(rune('A'+i)) + "_USDT"
	}
	f.BarsBatch(context.Background(), symbols, "1m", 10)
	if max := atomic.LoadInt32(&gw.maxSeen); max > 3 {
		t.Fatalf("concurrency cap exceeded: saw %d in flight", max)
	}
}

func TestBatchRespectsCanceledContext(t *testing.T) {
	gw := newFakeGateway()
	f := testFetcher(gw)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.BarsBatch(ctx, []string{"AAA_USDT", "BBB_USDT"}, "1m", 10)
	if len(out) != 0 {
		t.Fatalf("expected empty result on canceled context, got %d", len(out))
	}
}
