package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/metrics"
)

// Fetcher is the single retrying data-access primitive used by the scanner
// and the monitor. Batch calls run at most MaxConcurrent requests at once;
// each request is wrapped in a timeout and retried with exponential backoff,
// then retried once more with a smaller bar count before the symbol is
// reported unavailable. Failures are per-symbol and never abort a batch.
type Fetcher struct {
	gw            Gateway
	log           zerolog.Logger
	maxConcurrent int
	retries       int
	retryBase     time.Duration
	callTimeout   time.Duration
	fallbackLimit int
}

// FetcherConfig carries the Fetcher tuning knobs.
type FetcherConfig struct {
	MaxConcurrent int
	Retries       int
	RetryBase     time.Duration
	CallTimeout   time.Duration
	FallbackLimit int
}

// NewFetcher wraps a gateway with retry and concurrency policy.
func NewFetcher(gw Gateway, log zerolog.Logger, cfg FetcherConfig) *Fetcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 250 * time.Millisecond
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 8 * time.Second
	}
	return &Fetcher{
		gw:            gw,
		log:           log,
		maxConcurrent: cfg.MaxConcurrent,
		retries:       cfg.Retries,
		retryBase:     cfg.RetryBase,
		callTimeout:   cfg.CallTimeout,
		fallbackLimit: cfg.FallbackLimit,
	}
}

// Bars fetches a single series with the full retry/fallback policy.
func (f *Fetcher) Bars(ctx context.Context, symbol, timeframe string, limit int) (market.Series, bool) {
	bars, err := withRetry(ctx, f.retries, f.retryBase, f.callTimeout, func(callCtx context.Context) ([]market.Bar, error) {
		return f.gw.FetchBars(callCtx, symbol, timeframe, limit)
	})
	if err != nil && f.fallbackLimit > 0 && f.fallbackLimit < limit {
		bars, err = withRetry(ctx, f.retries, f.retryBase, f.callTimeout, func(callCtx context.Context) ([]market.Bar, error) {
			return f.gw.FetchBars(callCtx, symbol, timeframe, f.fallbackLimit)
		})
	}
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues("bars").Inc()
		f.log.Debug().Err(err).Str("sym", symbol).Str("tf", timeframe).Msg("bars unavailable")
		return market.Series{}, false
	}
	return market.Series{Symbol: symbol, Timeframe: timeframe, Bars: bars}, true
}

// BarsBatch fetches series for many symbols concurrently. Symbols whose data
// is unavailable are simply absent from the result.
func (f *Fetcher) BarsBatch(ctx context.Context, symbols []string, timeframe string, limit int) map[string]market.Series {
	out := make(map[string]market.Series, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, f.maxConcurrent)

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(sym string) {
			defer wg.Done()
			defer func() { <-sem }()
			series, ok := f.Bars(ctx, sym, timeframe, limit)
			if !ok {
				return
			}
			mu.Lock()
			out[sym] = series
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return out
}

// Ticker fetches a live snapshot for one symbol with retries.
func (f *Fetcher) Ticker(ctx context.Context, symbol string) (market.Ticker, bool) {
	tk, err := withRetry(ctx, f.retries, f.retryBase, f.callTimeout, func(callCtx context.Context) (market.Ticker, error) {
		return f.gw.FetchTicker(callCtx, symbol)
	})
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues("ticker").Inc()
		return market.Ticker{}, false
	}
	return tk, true
}

// TickersBatch fetches the full ticker map with retries.
func (f *Fetcher) TickersBatch(ctx context.Context) (map[string]market.Ticker, bool) {
	tks, err := withRetry(ctx, f.retries, f.retryBase, f.callTimeout, func(callCtx context.Context) (map[string]market.Ticker, error) {
		return f.gw.FetchTickers(callCtx)
	})
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues("tickers").Inc()
		return nil, false
	}
	return tks, true
}

// withRetry runs call with a per-attempt timeout and exponential backoff
// between attempts. It is a free function because methods cannot carry type
// parameters.
func withRetry[T any](ctx context.Context, attempts int, base, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := base
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		v, err := call(callCtx)
		cancel()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt < attempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
			backoff *= 2
		}
	}
	return zero, lastErr
}
