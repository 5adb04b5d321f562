// Package scorer ranks gate-passed candidates using higher-timeframe trend
// context and a reference-asset filter.
package scorer

import (
	"math"
	"time"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/gate"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
)

// Hard veto reasons. A vetoed candidate produces no score at all.
const (
	VetoNone         = ""
	VetoCounterTrend = "counter_trend"
	VetoReference    = "reference_move"
)

// Config carries the scorer weights and higher-timeframe settings.
type Config struct {
	TrendSMAPeriod   int
	TrendLookback    int
	ATRPeriod        int
	StrongTrendATR   float64
	ReferenceVetoPct float64

	WickWeight        float64
	SpikeWeight       float64
	TrendPenalty      float64
	TrendBonus        float64
	ReferencePenalty  float64
	MeanRevPenalty    float64
	MissingHTFPenalty float64
	ExtraGateBonus    float64
	LongBias          float64

	WickRatio    float64
	ATRSpikeMult float64
}

// Context is the cross-symbol state a single scoring call needs.
type Context struct {
	HTF                  market.Series // higher-timeframe bars; may be empty
	ReferenceMomentumPct float64       // signed % move of the reference asset
	ReferenceOK          bool
}

// Candidate is a scored entry opportunity, alive for one scan cycle.
type Candidate struct {
	Symbol string
	Side   market.Side
	Score  float64
	BarTs  time.Time
	Bar    market.Bar
	Gate   gate.Result
}

// TrendSlopeATR measures the higher-timeframe trend: the change of the
// period-SMA over lookback bars, normalized by ATR. Positive means rising.
// Returns NaN when the series is too short.
func TrendSlopeATR(series market.Series, smaPeriod, lookback, atrPeriod int) float64 {
	closes := series.Closes()
	n := len(closes)
	if n < smaPeriod+lookback || lookback <= 0 {
		return math.NaN()
	}
	now := market.SMAAt(closes, smaPeriod, n-1)
	then := market.SMAAt(closes, smaPeriod, n-1-lookback)
	atr := market.ATR(series.Bars, atrPeriod)
	if !market.Finite(now, then) || atr <= 0 {
		return math.NaN()
	}
	return (now - then) / atr
}

// Score combines the gate metrics with trend and reference context into a
// single number; higher is stronger. The second return value names the hard
// veto that fired, or VetoNone. Scoring is pure: identical inputs always
// produce identical output.
func Score(res gate.Result, ctx Context, cfg Config) (Candidate, string) {
	cand := Candidate{
		Symbol: res.Symbol,
		Side:   res.Side,
		BarTs:  res.Bar.Ts,
		Bar:    res.Bar,
		Gate:   res,
	}

	slope := TrendSlopeATR(ctx.HTF, cfg.TrendSMAPeriod, cfg.TrendLookback, cfg.ATRPeriod)
	htfOK := market.Finite(slope)

	if htfOK {
		if res.Side == market.Long && slope <= -cfg.StrongTrendATR {
			return cand, VetoCounterTrend
		}
		if res.Side == market.Short && slope >= cfg.StrongTrendATR {
			return cand, VetoCounterTrend
		}
	}

	if ctx.ReferenceOK {
		if res.Side == market.Long && ctx.ReferenceMomentumPct <= -cfg.ReferenceVetoPct {
			return cand, VetoReference
		}
		if res.Side == market.Short && ctx.ReferenceMomentumPct >= cfg.ReferenceVetoPct {
			return cand, VetoReference
		}
	}

	wickReq := cfg.WickRatio
	score := cfg.WickWeight * market.Clamp(res.WickRatio-wickReq, 0, 3)
	score += cfg.SpikeWeight * market.Clamp(res.SpikeMult-cfg.ATRSpikeMult, 0, 3)

	if htfOK {
		aligned := (res.Side == market.Long && slope > 0) || (res.Side == market.Short && slope < 0)
		mag := math.Min(math.Abs(slope), 1)
		if aligned {
			score += cfg.TrendBonus * mag
		} else {
			score -= cfg.TrendPenalty * mag
		}
	} else {
		score -= cfg.MissingHTFPenalty
	}

	if ctx.ReferenceOK && cfg.ReferenceVetoPct > 0 {
		adverse := 0.0
		if res.Side == market.Long && ctx.ReferenceMomentumPct < 0 {
			adverse = -ctx.ReferenceMomentumPct
		} else if res.Side == market.Short && ctx.ReferenceMomentumPct > 0 {
			adverse = ctx.ReferenceMomentumPct
		}
		score -= cfg.ReferencePenalty * market.Clamp(adverse/cfg.ReferenceVetoPct, 0, 1)
	}

	score -= cfg.MeanRevPenalty * market.Clamp(res.SMADistATR-1, 0, 2)

	if res.PassCount > 2 {
		score += cfg.ExtraGateBonus
	}

	if res.Side == market.Long {
		score -= cfg.LongBias
	}

	cand.Score = score
	return cand, VetoNone
}
