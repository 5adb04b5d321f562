package exchange

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultWSURL = "wss://contract.mexc.com/edge"

// TickerStream keeps a cache of last traded prices pushed over the venue
// websocket. The opener prefers these over a REST round-trip when validating
// the entry touch condition; the monitor uses them while a position is still
// on its entry bar.
type TickerStream struct {
	url string
	log zerolog.Logger

	mu          sync.RWMutex
	last        map[string]streamPrice
	maxAge      time.Duration
	readTimeout time.Duration
}

type streamPrice struct {
	price float64
	ts    time.Time
}

// NewTickerStream builds a stream; url may be empty for the default venue edge.
func NewTickerStream(url string, log zerolog.Logger) *TickerStream {
	if url == "" {
		url = defaultWSURL
	}
	return &TickerStream{
		url:         url,
		log:         log,
		last:        make(map[string]streamPrice),
		maxAge:      15 * time.Second,
		readTimeout: 30 * time.Second,
	}
}

// Last returns the cached live price for a symbol if it is fresh enough.
func (s *TickerStream) Last(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.last[symbol]
	if !ok || time.Since(p.ts) > s.maxAge {
		return 0, false
	}
	return p.price, true
}

// Run keeps the subscription alive until the context is canceled,
// reconnecting with capped exponential backoff.
func (s *TickerStream) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn().Err(err).Msg("ticker stream disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	Ts      int64           `json:"ts"`
}

type wsTicker struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"lastPrice"`
}

func (s *TickerStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{"method": "sub.tickers", "param": map[string]any{}}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	s.log.Info().Str("url", s.url).Msg("connected ticker stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(map[string]string{"method": "ping"}); err != nil {
					s.log.Warn().Err(err).Msg("ticker stream ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		// the venue answers the JSON ping with a JSON "pong" text message,
		// not a pong control frame, so any received message is the keepalive
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		var env wsEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.log.Warn().Err(err).Msg("failed to decode stream message")
			continue
		}
		if env.Channel == "pong" {
			continue
		}
		if env.Channel != "push.tickers" {
			continue
		}
		var tickers []wsTicker
		if err := json.Unmarshal(env.Data, &tickers); err != nil {
			s.log.Warn().Err(err).Msg("failed to decode ticker push")
			continue
		}
		ts := time.UnixMilli(env.Ts)
		if env.Ts == 0 {
			ts = time.Now()
		}
		s.mu.Lock()
		for _, tk := range tickers {
			if tk.Symbol == "" || tk.LastPrice <= 0 {
				continue
			}
			s.last[tk.Symbol] = streamPrice{price: tk.LastPrice, ts: ts}
		}
		s.mu.Unlock()
	}
}

// put is a test hook for seeding cached prices.
func (s *TickerStream) put(symbol string, price float64, ts time.Time) {
	s.mu.Lock()
	s.last[symbol] = streamPrice{price: price, ts: ts}
	s.mu.Unlock()
}
