package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
)

const defaultBaseURL = "https://contract.mexc.com"

// RestClient talks to the MEXC contract (perpetual swap) public REST API.
// Every call goes through a shared rate limiter and a circuit breaker so a
// misbehaving venue degrades requests instead of piling them up.
type RestClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger

	mu        sync.RWMutex
	tickSizes map[string]float64
}

// RestOption configures RestClient construction.
type RestOption func(*RestClient)

// WithBaseURL overrides the API host (tests point this at httptest servers).
func WithBaseURL(u string) RestOption {
	return func(c *RestClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithTimeout overrides the per-request HTTP timeout.
func WithTimeout(d time.Duration) RestOption {
	return func(c *RestClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithRateLimit bounds outbound requests per second.
func WithRateLimit(perSecond float64, burst int) RestOption {
	return func(c *RestClient) {
		if perSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewRestClient constructs a gateway implementation for the public swap API.
func NewRestClient(log zerolog.Logger, opts ...RestOption) *RestClient {
	c := &RestClient{
		baseURL:   defaultBaseURL,
		client:    &http.Client{Timeout: 8 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(6), 10),
		log:       log,
		tickSizes: make(map[string]float64),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "exchange-rest",
		Timeout: 20 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func (c *RestClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	raw, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("exchange http status %d", resp.StatusCode)
		}
		var env apiEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		if !env.Success && env.Code != 0 {
			return nil, fmt.Errorf("exchange api code %d", env.Code)
		}
		return env.Data, nil
	})
	if err != nil {
		return err
	}
	data, _ := raw.(json.RawMessage)
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

type klineColumns struct {
	Time  []int64   `json:"time"`
	Open  []float64 `json:"open"`
	High  []float64 `json:"high"`
	Low   []float64 `json:"low"`
	Close []float64 `json:"close"`
	Vol   []float64 `json:"vol"`
}

var intervalNames = map[string]string{
	"1m": "Min1", "5m": "Min5", "15m": "Min15", "30m": "Min30",
	"1h": "Min60", "4h": "Hour4", "8h": "Hour8", "1d": "Day1",
}

// FetchBars returns up to limit most recent bars, oldest first. The final bar
// may still be forming.
func (c *RestClient) FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error) {
	interval, ok := intervalNames[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
	step := market.TimeframeDuration(timeframe)
	end := time.Now()
	start := end.Add(-step * time.Duration(limit+1))
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))

	var cols klineColumns
	if err := c.getJSON(ctx, "/api/v1/contract/kline/"+url.PathEscape(symbol), q, &cols); err != nil {
		return nil, fmt.Errorf("fetch bars %s: %w", symbol, err)
	}
	n := len(cols.Time)
	for _, l := range []int{len(cols.Open), len(cols.High), len(cols.Low), len(cols.Close), len(cols.Vol)} {
		if l < n {
			n = l
		}
	}
	bars := make([]market.Bar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, market.Bar{
			Ts:     time.Unix(cols.Time[i], 0).UTC(),
			Open:   cols.Open[i],
			High:   cols.High[i],
			Low:    cols.Low[i],
			Close:  cols.Close[i],
			Volume: cols.Vol[i],
		})
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

type tickerPayload struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"lastPrice"`
	Bid1      float64 `json:"bid1"`
	Ask1      float64 `json:"ask1"`
	Amount24  float64 `json:"amount24"`
	Timestamp int64   `json:"timestamp"`
}

func (p tickerPayload) ticker() market.Ticker {
	return market.Ticker{
		Symbol:      p.Symbol,
		Last:        p.LastPrice,
		Bid:         p.Bid1,
		Ask:         p.Ask1,
		QuoteVolume: p.Amount24,
		Ts:          time.UnixMilli(p.Timestamp).UTC(),
	}
}

// FetchTicker returns the live snapshot for one contract.
func (c *RestClient) FetchTicker(ctx context.Context, symbol string) (market.Ticker, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	var p tickerPayload
	if err := c.getJSON(ctx, "/api/v1/contract/ticker", q, &p); err != nil {
		return market.Ticker{}, fmt.Errorf("fetch ticker %s: %w", symbol, err)
	}
	return p.ticker(), nil
}

// FetchTickers returns snapshots for every listed contract in one call.
func (c *RestClient) FetchTickers(ctx context.Context) (map[string]market.Ticker, error) {
	var payload []tickerPayload
	if err := c.getJSON(ctx, "/api/v1/contract/ticker", nil, &payload); err != nil {
		return nil, fmt.Errorf("fetch tickers: %w", err)
	}
	out := make(map[string]market.Ticker, len(payload))
	for _, p := range payload {
		out[p.Symbol] = p.ticker()
	}
	return out, nil
}

type contractDetail struct {
	Symbol       string  `json:"symbol"`
	BaseCoin     string  `json:"baseCoin"`
	QuoteCoin    string  `json:"quoteCoin"`
	PriceUnit    float64 `json:"priceUnit"`
	ContractSize float64 `json:"contractSize"`
}

// ListMarkets fetches contract listings and caches tick sizes for rounding.
func (c *RestClient) ListMarkets(ctx context.Context) (map[string]MarketInfo, error) {
	var details []contractDetail
	if err := c.getJSON(ctx, "/api/v1/contract/detail", nil, &details); err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	out := make(map[string]MarketInfo, len(details))
	c.mu.Lock()
	for _, d := range details {
		out[d.Symbol] = MarketInfo{
			Symbol:       d.Symbol,
			Base:         d.BaseCoin,
			Quote:        d.QuoteCoin,
			TickSize:     d.PriceUnit,
			ContractSize: d.ContractSize,
		}
		if d.PriceUnit > 0 {
			c.tickSizes[d.Symbol] = d.PriceUnit
		}
	}
	c.mu.Unlock()
	return out, nil
}

// TickSize returns the cached tick size for a symbol, 0 if unknown.
func (c *RestClient) TickSize(symbol string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tickSizes[symbol]
}

// RoundToTick snaps a price using the cached tick size.
func (c *RestClient) RoundToTick(symbol string, price float64) float64 {
	return RoundToTick(price, c.TickSize(symbol))
}
