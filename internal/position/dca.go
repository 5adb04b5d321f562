package position

import (
	"math"
	"sort"
	"time"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
)

// AddStep fills the next planned margin step at the given price, re-averages
// the entry basis, and recomputes the take-profit bracket from the new
// average. Returns false once the plan is exhausted or the position closed.
func (p *Position) AddStep(price float64, ts time.Time) bool {
	if p.Status != Active || price <= 0 {
		return false
	}
	idx := len(p.Steps)
	if idx >= len(p.StepMargins) {
		return false
	}
	margin := p.StepMargins[idx]
	qty := margin * p.Leverage / price
	p.Steps = append(p.Steps, Step{Price: price, Margin: margin, Qty: qty, Ts: ts})
	p.Qty += qty

	notional := 0.0
	for _, s := range p.Steps {
		notional += s.Price * s.Qty
	}
	p.AvgPrice = notional / p.Qty
	p.retarget()
	return true
}

// retarget moves the take-profit to sit the configured percentage away from
// the current average. The stop is left alone; the trailing ratchet owns it.
func (p *Position) retarget() {
	if p.TPPct <= 0 || p.AvgPrice <= 0 {
		return
	}
	if p.Side == market.Long {
		p.Target = p.AvgPrice * (1 + p.TPPct/100)
	} else {
		p.Target = p.AvgPrice * (1 - p.TPPct/100)
	}
}

// StepsRemaining counts unfilled steps, honouring a breakout freeze that
// reserves exactly one final step for the retest entry.
func (p *Position) StepsRemaining() int {
	left := len(p.StepMargins) - len(p.Steps)
	if left < 0 {
		left = 0
	}
	if p.Frozen && p.ReservedFinalStep && left > 1 {
		left = 1
	}
	return left
}

// NextStepPrice returns the next unfilled ladder level, or false when the
// ladder is exhausted or the position frozen without a retest.
func (p *Position) NextStepPrice() (float64, bool) {
	if p.Frozen {
		return 0, false
	}
	idx := len(p.Steps) - 1 // step 0 is the initial entry, not on the ladder
	if idx < 0 || idx >= len(p.Ladder) {
		return 0, false
	}
	return p.Ladder[idx], true
}

// FreezeOnBreakout engages the breakout freeze when price escapes the
// strategic range in the averaging direction: remaining steps collapse to a
// single reserved slot that only a confirmed retest may spend. Returns true
// on the transition.
func (p *Position) FreezeOnBreakout(price, strategicLow, strategicHigh float64) bool {
	if p.Frozen || p.Status != Active {
		return false
	}
	broke := false
	if p.Side == market.Long {
		broke = price < strategicLow
	} else {
		broke = price > strategicHigh
	}
	if !broke {
		return false
	}
	p.Frozen = true
	p.ReservedFinalStep = len(p.Steps) < len(p.StepMargins)
	return true
}

// RetestReady reports whether a frozen position may spend its reserved step:
// price must have re-entered the strategic range by at least bandPct of the
// range width, with a trend reversal confirmed by the caller.
func (p *Position) RetestReady(price, strategicLow, strategicHigh, bandPct float64, trendReversed bool) bool {
	if !p.Frozen || !p.ReservedFinalStep || !trendReversed {
		return false
	}
	width := strategicHigh - strategicLow
	if width <= 0 {
		return false
	}
	band := width * bandPct
	if p.Side == market.Long {
		return price >= strategicLow+band
	}
	return price <= strategicHigh-band
}

// Unfreeze spends the reserved step flag after a retest entry fills.
func (p *Position) Unfreeze() {
	p.Frozen = false
	p.ReservedFinalStep = false
}

// BuildLadder lays out averaging levels below (long) or above (short) the
// entry as fixed fractions of two lookback ranges, merges the tactical and
// strategic horizons, drops near-duplicates, and orders the result in the
// averaging direction.
func BuildLadder(side market.Side, entry float64, tactLow, tactHigh, stratLow, stratHigh, stepPct float64) []float64 {
	if stepPct <= 0 {
		return nil
	}
	var levels []float64
	add := func(lo, hi float64) {
		width := hi - lo
		if width <= 0 {
			return
		}
		step := width * stepPct
		if side == market.Long {
			for px := entry - step; px >= lo; px -= step {
				levels = append(levels, px)
			}
		} else {
			for px := entry + step; px <= hi; px += step {
				levels = append(levels, px)
			}
		}
	}
	add(tactLow, tactHigh)
	add(stratLow, stratHigh)
	if len(levels) == 0 {
		return nil
	}
	sort.Float64s(levels)
	if side == market.Long {
		for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
			levels[i], levels[j] = levels[j], levels[i]
		}
	}
	tol := entry * 1e-4
	out := levels[:1]
	for _, px := range levels[1:] {
		if math.Abs(px-out[len(out)-1]) > tol {
			out = append(out, px)
		}
	}
	return out
}
