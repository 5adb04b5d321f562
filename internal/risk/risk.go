// Package risk holds the position-sizing math: the geometric DCA margin
// plan, stop and target distances, and the liquidation estimate.
package risk

import (
	"math"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
)

// PlanMargins splits bank*cumFrac across levels as a geometric sequence with
// the given growth factor. The sum of the returned margins equals
// bank*cumFrac for any growth >= 1.
func PlanMargins(bank, cumFrac float64, levels int, growth float64) []float64 {
	if levels <= 0 || bank <= 0 || cumFrac <= 0 {
		return nil
	}
	total := bank * cumFrac
	out := make([]float64, levels)
	if growth <= 1 {
		for i := range out {
			out[i] = total / float64(levels)
		}
		return out
	}
	first := total * (growth - 1) / (math.Pow(growth, float64(levels)) - 1)
	for i := range out {
		out[i] = first * math.Pow(growth, float64(i))
	}
	return out
}

// GrowthFor picks the step growth factor from range context: a thin range
// (width under minATRMult times ATR) uses the gentler thin-range growth so
// later steps are not starved of room.
func GrowthFor(rangeWidth, atr, minATRMult, base, thin float64) float64 {
	if atr > 0 && rangeWidth < minATRMult*atr {
		return thin
	}
	return base
}

// StopDistance is the larger of a fixed percentage of entry and an
// ATR-scaled distance.
func StopDistance(entry, atr, slPct, slATRMult float64) float64 {
	pct := entry * slPct / 100
	scaled := atr * slATRMult
	if scaled > pct {
		return scaled
	}
	return pct
}

// TargetDistance is a fixed percentage of entry.
func TargetDistance(entry, tpPct float64) float64 {
	return entry * tpPct / 100
}

// AggressionFactor maps how far a score cleared its threshold into a
// multiplier in [1, 1.5]: stronger signals earn deeper tail entries and wider
// targets. fullAt is the margin at which the factor saturates.
func AggressionFactor(scoreMargin, fullAt float64) float64 {
	if fullAt <= 0 {
		return 1
	}
	return 1 + 0.5*market.Clamp(scoreMargin/fullAt, 0, 1)
}

// LiquidationPrice estimates where position equity is exhausted, given the
// volume-weighted average entry, quantity in base units, account equity
// backing the position, and the maintenance margin ratio. Operator
// visibility only, never an exit trigger.
func LiquidationPrice(side market.Side, avg, qty, equity, maintenanceMarginRatio float64) float64 {
	if qty <= 0 || avg <= 0 {
		return 0
	}
	if side == market.Long {
		denom := qty * (1 - maintenanceMarginRatio)
		if denom <= 0 {
			return 0
		}
		liq := (avg*qty - equity) / denom
		if liq < 0 {
			return 0
		}
		return liq
	}
	denom := qty * (1 + maintenanceMarginRatio)
	if denom <= 0 {
		return 0
	}
	return (avg*qty + equity) / denom
}
