package engine

import (
	"context"
	"time"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/position"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/scorer"
)

// monitorOnce walks every active position. Runs on its own cadence so open
// positions are never starved by a long scan cycle.
func (e *Engine) monitorOnce(ctx context.Context) {
	e.mu.Lock()
	open := make([]*position.Position, 0, len(e.positions))
	for _, p := range e.positions {
		if p.Status == position.Active {
			open = append(open, p)
		}
	}
	e.mu.Unlock()

	for _, p := range open {
		if ctx.Err() != nil {
			return
		}
		e.monitorPosition(ctx, p)
	}
}

// monitorPosition drives one position through a monitor pass. Market data is
// fetched outside the engine lock; every Position mutation happens under it,
// so Positions/Status/SaveState readers always see a consistent struct.
func (e *Engine) monitorPosition(ctx context.Context, p *position.Position) {
	now := e.clock()
	step := market.TimeframeDuration(e.cfg.Gate.Timeframe)

	live, liveOK := e.lastPrice(ctx, p.Symbol)

	// entry bar: bracket prices are not resting orders yet, judge the live
	// print only
	if now.Before(p.EntryBarTs.Add(step)) {
		if liveOK {
			if reason, px, hit := e.liveExit(p, live); hit {
				e.closePosition(p, reason, px, now)
			}
		}
		return
	}

	limit := maxInt(e.cfg.Gate.ATRPeriod+2, e.cfg.DCA.StrategicLookback+1)
	series, ok := e.fetch.Bars(ctx, p.Symbol, e.cfg.Gate.Timeframe, limit)
	if !ok || series.Len() == 0 {
		return
	}
	bars := series.Bars
	// drop a still-forming final bar
	if last, has := series.Last(); has && last.Ts.Add(step).After(now) {
		bars = bars[:len(bars)-1]
	}
	if len(bars) == 0 {
		return
	}
	lastBar := bars[len(bars)-1]
	if lastBar.Ts.Before(p.EntryBarTs.Add(step)) {
		// no completed bar after the entry bar yet
		if liveOK {
			if reason, px, hit := e.liveExit(p, live); hit {
				e.closePosition(p, reason, px, now)
			}
		}
		return
	}

	atr := market.ATR(bars, e.cfg.Gate.ATRPeriod)
	tick := e.gw.TickSize(p.Symbol)

	e.mu.Lock()
	if p.Status != position.Active {
		e.mu.Unlock()
		return
	}
	if liveOK {
		p.UpdateExcursion(live)
	}
	p.UpdateExcursion(lastBar.High)
	p.UpdateExcursion(lastBar.Low)

	reason, px, hit := p.EvaluateBarExit(lastBar)
	if !hit {
		if p.DCA {
			e.manageDCA(p, series, bars, lastBar, atr, now)
		}
		price := lastBar.Close
		if liveOK {
			price = live
		}
		if market.Finite(atr) && atr > 0 {
			p.UpdateTrailing(price, atr, position.TrailParams{
				ArmFracs:          e.cfg.DCA.TrailArmFracs,
				LockFracs:         e.cfg.DCA.TrailLockFracs,
				ChandelierATRMult: e.cfg.DCA.ChandelierATRMult,
				TickSize:          tick,
				MinTickSteps:      e.cfg.DCA.MinTrailTickSteps,
			})
		}
	}
	e.mu.Unlock()

	if hit {
		e.closePosition(p, reason, px, now)
	}
}

// liveExit records the live print's excursion and checks it against the
// brackets, all under the engine lock.
func (e *Engine) liveExit(p *position.Position, live float64) (position.CloseReason, float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.Status != position.Active {
		return "", 0, false
	}
	p.UpdateExcursion(live)
	return p.EvaluateLiveExit(live)
}

// manageDCA handles ladder fills, breakout freezing, and retest re-entry.
// Callers hold e.mu.
func (e *Engine) manageDCA(p *position.Position, series market.Series, bars []market.Bar, lastBar market.Bar, atr float64, now time.Time) {
	stratLow, stratHigh := rangeOf(bars, e.cfg.DCA.StrategicLookback)

	if p.FreezeOnBreakout(lastBar.Close, stratLow, stratHigh) {
		e.log.Info().Str("symbol", p.Symbol).Float64("close", lastBar.Close).
			Msg("range breakout, averaging frozen")
	}

	if p.Frozen {
		reversed := e.trendReversedToward(series, p.Side)
		if p.RetestReady(lastBar.Close, stratLow, stratHigh, e.cfg.DCA.RetestBandPct, reversed) {
			e.fillStep(p, lastBar.Close, now)
			p.Unfreeze()
		}
		return
	}

	next, ok := p.NextStepPrice()
	if !ok {
		return
	}
	touched := (p.Side == market.Long && lastBar.Low <= next) ||
		(p.Side == market.Short && lastBar.High >= next)
	if touched {
		e.fillStep(p, next, now)
	}
}

// fillStep reserves the next step's margin and averages in.
func (e *Engine) fillStep(p *position.Position, price float64, now time.Time) {
	idx := len(p.Steps)
	if idx >= len(p.StepMargins) {
		return
	}
	if err := e.account.Reserve(p.StepMargins[idx]); err != nil {
		e.log.Warn().Err(err).Str("symbol", p.Symbol).Int("step", idx).
			Msg("step margin reservation failed")
		return
	}
	if !p.AddStep(price, now) {
		e.account.Release(p.StepMargins[idx], 0)
		return
	}
	e.log.Info().Str("symbol", p.Symbol).Int("step", idx).
		Float64("price", price).Float64("avg", p.Basis()).
		Msg("averaging step filled")
}

// trendReversedToward reports whether the short-horizon trend now points in
// the position's favor; the retest confirmation.
func (e *Engine) trendReversedToward(series market.Series, side market.Side) bool {
	slope := scorer.TrendSlopeATR(series, e.cfg.Score.TrendSMAPeriod, e.cfg.Score.TrendLookback, e.cfg.Gate.ATRPeriod)
	if !market.Finite(slope) {
		return false
	}
	if side == market.Long {
		return slope > 0
	}
	return slope < 0
}
