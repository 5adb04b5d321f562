package engine

import (
	"context"
	"math"
	"time"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/journal"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/metrics"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/notify"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/position"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/risk"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/scorer"
)

// entryPlan is the computed open order for a candidate.
type entryPlan struct {
	Entry  float64
	Stop   float64
	Target float64
	Band   float64 // touch tolerance around the entry
}

// planEntry places the limit entry inside the signal bar's dominant wick at
// the configured tail fraction. A score that clears the threshold with margin
// earns more aggressive parameters: the aggression factor deepens the tail
// fraction and widens the target percentage together. Stop and target hang
// off the entry; everything is snapped to the tick grid.
func (e *Engine) planEntry(side market.Side, bar market.Bar, atr, tick, scoreMargin float64) entryPlan {
	factor := risk.AggressionFactor(scoreMargin, 1.0)
	frac := e.cfg.Risk.EntryTailFraction * factor
	if frac > 1 {
		frac = 1
	}

	var entry, wick float64
	if side == market.Long {
		entry = bar.Low + frac*(bar.Open-bar.Low)
		wick = bar.LowerWick()
	} else {
		entry = bar.High - frac*(bar.High-bar.Open)
		wick = bar.UpperWick()
	}

	stopDist := risk.StopDistance(entry, atr, e.cfg.Risk.SLPct, e.cfg.Risk.SLATRMult)
	tpDist := risk.TargetDistance(entry, e.cfg.Risk.TPPct*factor)

	var stop, target float64
	if side == market.Long {
		stop, target = entry-stopDist, entry+tpDist
	} else {
		stop, target = entry+stopDist, entry-tpDist
	}

	band := math.Max(3*tick, 0.05*atr)
	band = math.Max(band, 0.1*wick)
	band = math.Max(band, entry*1e-4)

	return entryPlan{
		Entry:  entry,
		Stop:   stop,
		Target: target,
		Band:   band,
	}
}

// tryOpen reserves the symbol and hands off to a detached goroutine that
// waits for price to trade back into the entry band. Returns true when the
// attempt was launched; the reservation is released exactly once, either on
// a failed attempt or when the resulting position closes.
func (e *Engine) tryOpen(ctx context.Context, cand scorer.Candidate, series market.Series, scoreMargin float64) bool {
	release, ok := e.resv.TryReserve(cand.Symbol)
	if !ok {
		return false
	}

	tick := e.gw.TickSize(cand.Symbol)
	atr := market.ATR(series.Bars, e.cfg.Gate.ATRPeriod)
	if !market.Finite(atr) || atr <= 0 {
		release()
		return false
	}
	plan := e.planEntry(cand.Side, cand.Bar, atr, tick, scoreMargin)
	plan.Entry = e.gw.RoundToTick(cand.Symbol, plan.Entry)
	plan.Stop = e.gw.RoundToTick(cand.Symbol, plan.Stop)
	plan.Target = e.gw.RoundToTick(cand.Symbol, plan.Target)

	threshold := e.thresh.ForSide(cand.Side)

	e.openWG.Add(1)
	go func() {
		defer e.openWG.Done()
		if !e.waitForTouch(ctx, cand.Symbol, plan) {
			metrics.NoTouchTotal.Inc()
			release()
			return
		}
		if !e.open(cand, series, plan, atr, threshold, release) {
			release()
		}
	}()
	return true
}

// waitForTouch polls the live price until it trades into the entry band or
// the wait window expires. The band is two-sided: a market that overshoots
// past the entry is no better a fill than one that never came back.
func (e *Engine) waitForTouch(ctx context.Context, symbol string, plan entryPlan) bool {
	deadline := e.clock().Add(e.touchWait)
	for {
		if px, ok := e.lastPrice(ctx, symbol); ok && math.Abs(px-plan.Entry) <= plan.Band {
			return true
		}
		if e.clock().After(deadline) || ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.touchPoll):
		}
	}
}

// open books the position after a touch: margin reservation, the optional
// averaging plan, journal, alert, adoption into the monitor set.
func (e *Engine) open(cand scorer.Candidate, series market.Series, plan entryPlan, atr, threshold float64, release func()) bool {
	now := e.clock()
	margin := e.cfg.Risk.PositionSizeUSDT

	p := &position.Position{
		SignalID:   journal.NewSignalID(now),
		Symbol:     cand.Symbol,
		Side:       cand.Side,
		Status:     position.Active,
		Entry:      plan.Entry,
		Stop:       plan.Stop,
		Target:     plan.Target,
		OpenedAt:   now,
		EntryBarTs: now.Truncate(market.TimeframeDuration(e.cfg.Gate.Timeframe)),
		Leverage:   e.cfg.Risk.Leverage,
		SizeUSDT:   margin,
	}

	if e.cfg.DCA.Enabled {
		tactLow, tactHigh := rangeOf(series.Bars, e.cfg.DCA.TacticalLookback)
		stratLow, stratHigh := rangeOf(series.Bars, e.cfg.DCA.StrategicLookback)
		growth := risk.GrowthFor(stratHigh-stratLow, atr, 2.0, e.cfg.DCA.Growth, e.cfg.DCA.GrowthThin)
		p.DCA = true
		p.TPPct = e.cfg.Risk.TPPct
		p.StepMargins = risk.PlanMargins(e.cfg.DCA.Bank, e.cfg.DCA.CumDepositFracAtFull, e.cfg.DCA.Levels, growth)
		p.Ladder = position.BuildLadder(cand.Side, plan.Entry, tactLow, tactHigh, stratLow, stratHigh, e.cfg.DCA.LadderStepPct)
		if len(p.StepMargins) > 0 {
			margin = p.StepMargins[0]
		}
	}

	if err := e.account.Reserve(margin); err != nil {
		e.log.Warn().Err(err).Str("symbol", cand.Symbol).Msg("margin reservation failed")
		return false
	}
	if p.DCA {
		p.AddStep(plan.Entry, now)
	}
	p.UpdateExcursion(plan.Entry)

	rec := journal.SignalRecord{
		SignalID:    p.SignalID,
		Symbol:      p.Symbol,
		Side:        string(p.Side),
		EntryPrice:  p.Entry,
		StopPrice:   p.Stop,
		TargetPrice: p.Target,
		Score:       cand.Score,
		Threshold:   threshold,
		WickRatio:   cand.Gate.WickRatio,
		SpikeMult:   cand.Gate.SpikeMult,
		VolumeZ:     cand.Gate.VolumeZ,
		Leverage:    p.Leverage,
		MarginUSDT:  margin,
		OpenTime:    now,
		StepsFilled: maxInt(len(p.Steps), 1),
		AvgPrice:    p.Basis(),
		LiqEstimate: e.liqEstimate(p),
	}
	if err := e.jrnl.RecordOpen(rec); err != nil {
		e.log.Error().Err(err).Str("signal", p.SignalID).Msg("journal open failed")
	}

	e.adopt(p, release)
	metrics.OpensTotal.WithLabelValues(p.Symbol, string(p.Side)).Inc()

	e.notifier.Notify(context.Background(),
		notify.OpenAlert(p.Symbol, string(p.Side), p.Entry, p.Stop, p.Target, cand.Score, threshold))

	e.log.Info().
		Str("symbol", p.Symbol).
		Str("side", string(p.Side)).
		Float64("entry", p.Entry).
		Float64("stop", p.Stop).
		Float64("target", p.Target).
		Float64("score", cand.Score).
		Msg("position opened")
	return true
}

// rangeOf reports the low/high of the last n bars.
func rangeOf(bars []market.Bar, n int) (float64, float64) {
	if n <= 0 || len(bars) == 0 {
		return 0, 0
	}
	if n > len(bars) {
		n = len(bars)
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, b := range bars[len(bars)-n:] {
		if b.Low < lo {
			lo = b.Low
		}
		if b.High > hi {
			hi = b.High
		}
	}
	return lo, hi
}
