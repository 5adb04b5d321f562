// Package market defines the bar/ticker primitives shared by the scanner
// pipeline plus the indicator math computed over them.
package market

import "time"

// Side is the direction of a candidate or position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Opposite returns the other direction.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Bar is a single OHLCV candle.
type Bar struct {
	Ts     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Body is the absolute open-close distance.
func (b Bar) Body() float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Range is the high-low distance.
func (b Bar) Range() float64 { return b.High - b.Low }

// UpperWick is the tail above the body.
func (b Bar) UpperWick() float64 {
	top := b.Open
	if b.Close > top {
		top = b.Close
	}
	return b.High - top
}

// LowerWick is the tail below the body.
func (b Bar) LowerWick() float64 {
	bottom := b.Open
	if b.Close < bottom {
		bottom = b.Close
	}
	return bottom - b.Low
}

// Series is an immutable, time-ordered sequence of bars for one (symbol, timeframe).
type Series struct {
	Symbol    string
	Timeframe string
	Bars      []Bar
}

// Len reports the number of bars.
func (s Series) Len() int { return len(s.Bars) }

// Last returns the most recent bar; ok is false on an empty series.
func (s Series) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// DropLast returns a copy of the series without its final bar. Used to discard
// the still-forming candle before running indicators.
func (s Series) DropLast() Series {
	if len(s.Bars) == 0 {
		return s
	}
	return Series{Symbol: s.Symbol, Timeframe: s.Timeframe, Bars: s.Bars[:len(s.Bars)-1]}
}

// Closes extracts the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts the volume column.
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// Ticker is a live top-of-book snapshot.
type Ticker struct {
	Symbol      string
	Last        float64
	Bid         float64
	Ask         float64
	QuoteVolume float64
	Ts          time.Time
}

// TimeframeDuration parses shorthand like "1m", "15m", "1h", "1d".
func TimeframeDuration(tf string) time.Duration {
	if len(tf) < 2 {
		return time.Minute
	}
	n := 0
	for _, r := range tf[:len(tf)-1] {
		if r < '0' || r > '9' {
			return time.Minute
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		n = 1
	}
	switch tf[len(tf)-1] {
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	default:
		return time.Duration(n) * time.Minute
	}
}
