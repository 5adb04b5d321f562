// Package universe rebuilds the scannable symbol set each cycle and tracks
// per-symbol cooldowns.
package universe

import (
	"sort"
	"strings"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/exchange"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
)

// Filter holds the liquidity and exclusion rules applied to listings.
type Filter struct {
	QuoteAsset        string
	MinQuoteVolumeUSD float64
	MinPrice          float64
	ExcludedBases     map[string]struct{}
}

// NewFilter normalizes config values into a Filter.
func NewFilter(quote string, minVolume, minPrice float64, excludedBases []string) Filter {
	excluded := make(map[string]struct{}, len(excludedBases))
	for _, b := range excludedBases {
		excluded[strings.ToUpper(strings.TrimSpace(b))] = struct{}{}
	}
	return Filter{
		QuoteAsset:        strings.ToUpper(quote),
		MinQuoteVolumeUSD: minVolume,
		MinPrice:          minPrice,
		ExcludedBases:     excluded,
	}
}

// Build produces the ordered symbol universe from listings and live tickers:
// swap contracts quoted in the configured asset, above the volume and price
// floors, with stable-asset bases excluded. Ordered by 24h quote volume
// descending so the most liquid names are scanned first, ties broken by name
// for determinism.
func Build(markets map[string]exchange.MarketInfo, tickers map[string]market.Ticker, f Filter) []string {
	type entry struct {
		symbol string
		volume float64
	}
	entries := make([]entry, 0, len(markets))
	for symbol, info := range markets {
		if f.QuoteAsset != "" && strings.ToUpper(info.Quote) != f.QuoteAsset {
			continue
		}
		if _, excluded := f.ExcludedBases[strings.ToUpper(info.Base)]; excluded {
			continue
		}
		tk, ok := tickers[symbol]
		if !ok {
			continue
		}
		if tk.QuoteVolume < f.MinQuoteVolumeUSD {
			continue
		}
		if tk.Last < f.MinPrice {
			continue
		}
		entries = append(entries, entry{symbol: symbol, volume: tk.QuoteVolume})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].volume != entries[j].volume {
			return entries[i].volume > entries[j].volume
		}
		return entries[i].symbol < entries[j].symbol
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.symbol
	}
	return out
}

// Rotate returns the universe starting at offset modulo its length, wrapping
// around, so a time-budgeted scan that aborts mid-universe resumes where the
// previous one stopped.
func Rotate(symbols []string, offset int) []string {
	n := len(symbols)
	if n == 0 {
		return nil
	}
	offset = ((offset % n) + n) % n
	out := make([]string, 0, n)
	out = append(out, symbols[offset:]...)
	out = append(out, symbols[:offset]...)
	return out
}
