package position

import (
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/exchange"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
)

// TrailParams configures the staged trailing ratchet.
type TrailParams struct {
	ArmFracs          []float64 // progress fractions that arm each stage
	LockFracs         []float64 // fraction of the target distance locked per stage
	ChandelierATRMult float64
	TickSize          float64
	MinTickSteps      int
}

// Progress reports how far price has travelled toward the target, as a
// fraction of the basis-to-target distance, clamped to [0, 1].
func (p *Position) Progress(price float64) float64 {
	basis := p.basis()
	dist := p.Target - basis
	if p.Side == market.Short {
		dist = basis - p.Target
	}
	if dist <= 0 {
		return 0
	}
	gain := price - basis
	if p.Side == market.Short {
		gain = basis - price
	}
	frac := gain / dist
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}

// UpdateTrailing advances the staged ratchet. Each stage arms once progress
// crosses its arm fraction; the stop then moves to the better of the locked
// profit level and the chandelier (ATR-anchored) stop. The stop only ever
// moves in the favorable direction, and only by at least MinTickSteps ticks.
// Returns the new stop and whether it moved.
func (p *Position) UpdateTrailing(price, atr float64, tp TrailParams) (float64, bool) {
	if p.Status != Active || len(tp.ArmFracs) == 0 {
		return p.Stop, false
	}
	progress := p.Progress(price)
	stage := p.TrailStage
	for i := range tp.ArmFracs {
		if progress >= tp.ArmFracs[i] && stage < i+1 {
			stage = i + 1
		}
	}
	if stage == 0 {
		return p.Stop, false
	}
	p.TrailStage = stage

	basis := p.basis()
	lockFrac := 0.0
	if stage-1 < len(tp.LockFracs) {
		lockFrac = tp.LockFracs[stage-1]
	}
	targetDist := p.Target - basis
	if p.Side == market.Short {
		targetDist = basis - p.Target
	}

	var candidate float64
	if p.Side == market.Long {
		lock := basis + lockFrac*targetDist
		chand := price - tp.ChandelierATRMult*atr
		candidate = lock
		if chand > candidate {
			candidate = chand
		}
	} else {
		lock := basis - lockFrac*targetDist
		chand := price + tp.ChandelierATRMult*atr
		candidate = lock
		if chand < candidate {
			candidate = chand
		}
	}
	if tp.TickSize > 0 {
		candidate = exchange.RoundToTick(candidate, tp.TickSize)
	}

	minMove := float64(tp.MinTickSteps) * tp.TickSize
	if p.Side == market.Long {
		if p.Stop > 0 && candidate-p.Stop < minMove {
			return p.Stop, false
		}
		if candidate <= p.Stop {
			return p.Stop, false
		}
	} else {
		if p.Stop > 0 && p.Stop-candidate < minMove {
			return p.Stop, false
		}
		if p.Stop > 0 && candidate >= p.Stop {
			return p.Stop, false
		}
	}
	p.Stop = candidate
	return p.Stop, true
}
