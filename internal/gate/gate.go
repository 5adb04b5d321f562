// Package gate implements the per-symbol statistical pre-filter that every
// candidate must clear before scoring.
package gate

import (
	"time"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
)

// Reject reasons for symbols that never reach the boolean sub-tests.
const (
	RejectNone         = ""
	RejectHistory      = "insufficient_history"
	RejectStaleBar     = "stale_bar"
	RejectPriceFloor   = "price_floor"
	RejectMicroBody    = "micro_body"
	RejectBadIndicator = "bad_indicator"
)

// Config carries the gate thresholds. Long candidates face a stricter wick
// requirement and a cap on the spike multiple; shorts use the base values.
type Config struct {
	Timeframe       string
	ATRPeriod       int
	ATRSpikeMult    float64
	WickRatio       float64
	VolWindow       int
	VolZThreshold   float64
	MinBodyATRFrac  float64
	SMAPeriod       int
	MinPrice        float64
	LongWickRatio   float64
	LongMaxSpikeATR float64
}

// Result is the per-symbol gate outcome: derived metrics, the boolean
// sub-tests, and the overall verdict. Recomputed every scan, never stored.
type Result struct {
	Symbol     string
	Side       market.Side
	Bar        market.Bar
	ATR        float64
	WickRatio  float64
	SpikeMult  float64
	VolumeZ    float64
	SMADistATR float64

	WickOK    bool
	SpikeOK   bool
	VolumeOK  bool
	PassCount int

	Passed bool
	Reject string
}

// Evaluate runs the gate over a fetched series. The signal bar is the most
// recent closed bar: a still-forming final bar is dropped when enough history
// remains, otherwise the symbol is rejected as stale.
func Evaluate(series market.Series, cfg Config, now time.Time) Result {
	res := Result{Symbol: series.Symbol}

	minBars := cfg.VolWindow + cfg.ATRPeriod + 1
	bars := series.Bars
	if len(bars) == 0 {
		res.Reject = RejectHistory
		return res
	}

	// drop the forming candle
	step := market.TimeframeDuration(cfg.Timeframe)
	if last := bars[len(bars)-1]; last.Ts.Add(step).After(now) {
		if len(bars)-1 < minBars {
			res.Reject = RejectStaleBar
			return res
		}
		bars = bars[:len(bars)-1]
	}
	if len(bars) < minBars {
		res.Reject = RejectHistory
		return res
	}

	signal := bars[len(bars)-1]
	res.Bar = signal

	if signal.Close < cfg.MinPrice {
		res.Reject = RejectPriceFloor
		return res
	}

	atr := market.ATR(bars, cfg.ATRPeriod)
	if !market.Finite(atr) || atr <= 0 {
		res.Reject = RejectBadIndicator
		return res
	}
	res.ATR = atr

	body := signal.Body()
	if body < cfg.MinBodyATRFrac*atr {
		res.Reject = RejectMicroBody
		return res
	}

	upper, lower := signal.UpperWick(), signal.LowerWick()
	// lower-tail dominance marks a down-spike rejection, traded counter as a long
	if lower >= upper {
		res.Side = market.Long
		res.WickRatio = lower / body
	} else {
		res.Side = market.Short
		res.WickRatio = upper / body
	}

	res.SpikeMult = signal.Range() / atr
	res.VolumeZ = market.VolumeZ(series.Volumes()[:len(bars)], cfg.VolWindow)

	closes := series.Closes()[:len(bars)]
	sma := market.SMA(closes, cfg.SMAPeriod)
	if market.Finite(sma) {
		dist := signal.Close - sma
		if dist < 0 {
			dist = -dist
		}
		res.SMADistATR = dist / atr
	}

	if !market.Finite(res.WickRatio, res.SpikeMult, res.VolumeZ) {
		res.Reject = RejectBadIndicator
		return res
	}

	wickReq := cfg.WickRatio
	if res.Side == market.Long && cfg.LongWickRatio > wickReq {
		wickReq = cfg.LongWickRatio
	}
	res.WickOK = res.WickRatio >= wickReq

	res.SpikeOK = res.SpikeMult >= cfg.ATRSpikeMult
	if res.Side == market.Long && cfg.LongMaxSpikeATR > 0 && res.SpikeMult > cfg.LongMaxSpikeATR {
		res.SpikeOK = false
	}

	res.VolumeOK = res.VolumeZ >= cfg.VolZThreshold

	for _, ok := range []bool{res.WickOK, res.SpikeOK, res.VolumeOK} {
		if ok {
			res.PassCount++
		}
	}

	// the range test is mandatory; wick and volume form a 1-of-2 with it
	res.Passed = res.SpikeOK && (res.WickOK || res.VolumeOK)
	return res
}
