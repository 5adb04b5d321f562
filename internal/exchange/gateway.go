// Package exchange hosts connectivity to the derivatives venue: the REST
// gateway, the retrying batch fetcher, and the live ticker stream.
package exchange

import (
	"context"
	"math"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
)

// MarketInfo is the per-contract metadata the engine needs from listings.
type MarketInfo struct {
	Symbol       string
	Base         string
	Quote        string
	TickSize     float64
	ContractSize float64
}

// Gateway is the venue contract consumed by the core. Implementations must be
// safe for concurrent use.
type Gateway interface {
	FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error)
	FetchTicker(ctx context.Context, symbol string) (market.Ticker, error)
	FetchTickers(ctx context.Context) (map[string]market.Ticker, error)
	ListMarkets(ctx context.Context) (map[string]MarketInfo, error)
	TickSize(symbol string) float64
	RoundToTick(symbol string, price float64) float64
}

// RoundToTick snaps a price to the nearest multiple of tick. A non-positive
// tick returns the price unchanged.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}
