// Package position models an open trade and the state machine that carries
// it from ACTIVE to CLOSED: bracket exits, excursion tracking, the DCA step
// ladder, breakout freezing, and the trailing-stop ratchet.
package position

import (
	"time"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
)

// Status is the lifecycle state.
type Status string

const (
	Active Status = "ACTIVE"
	Closed Status = "CLOSED"
)

// CloseReason names why a position exited.
type CloseReason string

const (
	ReasonStopLoss   CloseReason = "STOP_LOSS"
	ReasonTakeProfit CloseReason = "TAKE_PROFIT"
	ReasonTrailing   CloseReason = "TRAILING_STOP"
	ReasonForced     CloseReason = "FORCE_CLOSE"
)

// Step is one DCA fill.
type Step struct {
	Price  float64   `json:"price"`
	Margin float64   `json:"margin"`
	Qty    float64   `json:"qty"`
	Ts     time.Time `json:"ts"`
}

// Position is owned by the engine and mutated only by the lifecycle monitor.
type Position struct {
	SignalID   string      `json:"signal_id"`
	Symbol     string      `json:"symbol"`
	Side       market.Side `json:"side"`
	Status     Status      `json:"status"`
	Entry      float64     `json:"entry"`
	Stop       float64     `json:"stop"`
	Target     float64     `json:"target"`
	OpenedAt   time.Time   `json:"opened_at"`
	EntryBarTs time.Time   `json:"entry_bar_ts"`
	Leverage   float64     `json:"leverage"`
	SizeUSDT   float64     `json:"size_usdt"`

	MaxFavorable float64 `json:"max_favorable"`
	MaxAdverse   float64 `json:"max_adverse"`

	// averaging variant
	DCA               bool      `json:"dca,omitempty"`
	Steps             []Step    `json:"steps,omitempty"`
	StepMargins       []float64 `json:"step_margins,omitempty"`
	Qty               float64   `json:"qty,omitempty"`
	AvgPrice          float64   `json:"avg_price,omitempty"`
	TPPct             float64   `json:"tp_pct,omitempty"`
	Ladder            []float64 `json:"ladder,omitempty"`
	TrailStage        int       `json:"trail_stage,omitempty"`
	Frozen            bool      `json:"frozen,omitempty"`
	ReservedFinalStep bool      `json:"reserved_final_step,omitempty"`

	ClosedAt    time.Time   `json:"closed_at,omitempty"`
	ExitPrice   float64     `json:"exit_price,omitempty"`
	RealizedPnL float64     `json:"realized_pnl,omitempty"`
	CloseReason CloseReason `json:"close_reason,omitempty"`
}

// UpdateExcursion folds a traded price into the running max-favorable and
// max-adverse extremes.
func (p *Position) UpdateExcursion(price float64) {
	if p.MaxFavorable == 0 {
		p.MaxFavorable = price
	}
	if p.MaxAdverse == 0 {
		p.MaxAdverse = price
	}
	if p.Side == market.Long {
		if price > p.MaxFavorable {
			p.MaxFavorable = price
		}
		if price < p.MaxAdverse {
			p.MaxAdverse = price
		}
	} else {
		if price < p.MaxFavorable {
			p.MaxFavorable = price
		}
		if price > p.MaxAdverse {
			p.MaxAdverse = price
		}
	}
}

// Basis is the price the exits and PnL are measured against: the average
// fill for an averaging position, the entry otherwise.
func (p *Position) Basis() float64 { return p.basis() }

func (p *Position) basis() float64 {
	if p.DCA && p.AvgPrice > 0 {
		return p.AvgPrice
	}
	return p.Entry
}

// EvaluateBarExit checks a completed bar's high/low against the brackets and
// returns the exit at the bracket price, emulating a resting order fill.
// When both brackets fall inside the bar the stop wins (pessimistic fill).
func (p *Position) EvaluateBarExit(bar market.Bar) (CloseReason, float64, bool) {
	if p.Status != Active {
		return "", 0, false
	}
	if p.Side == market.Long {
		if p.Stop > 0 && bar.Low <= p.Stop {
			return p.stopReason(), p.Stop, true
		}
		if p.Target > 0 && bar.High >= p.Target {
			return ReasonTakeProfit, p.Target, true
		}
	} else {
		if p.Stop > 0 && bar.High >= p.Stop {
			return p.stopReason(), p.Stop, true
		}
		if p.Target > 0 && bar.Low <= p.Target {
			return ReasonTakeProfit, p.Target, true
		}
	}
	return "", 0, false
}

// EvaluateLiveExit checks a live traded price against the brackets; used
// only while the position is still on its entry bar.
func (p *Position) EvaluateLiveExit(price float64) (CloseReason, float64, bool) {
	if p.Status != Active {
		return "", 0, false
	}
	if p.Side == market.Long {
		if p.Stop > 0 && price <= p.Stop {
			return p.stopReason(), price, true
		}
		if p.Target > 0 && price >= p.Target {
			return ReasonTakeProfit, price, true
		}
	} else {
		if p.Stop > 0 && price >= p.Stop {
			return p.stopReason(), price, true
		}
		if p.Target > 0 && price <= p.Target {
			return ReasonTakeProfit, price, true
		}
	}
	return "", 0, false
}

func (p *Position) stopReason() CloseReason {
	if p.TrailStage > 0 {
		return ReasonTrailing
	}
	return ReasonStopLoss
}

// Close marks the position CLOSED and books realized PnL. Closing an
// already-closed position is a no-op; the first close wins.
func (p *Position) Close(reason CloseReason, exitPrice float64, now time.Time) bool {
	if p.Status == Closed {
		return false
	}
	p.Status = Closed
	p.CloseReason = reason
	p.ExitPrice = exitPrice
	p.ClosedAt = now
	p.RealizedPnL = p.PnLAt(exitPrice)
	return true
}

// PnLAt computes realized PnL in quote units at the given exit price:
// signed price distance times leverage times the committed size.
func (p *Position) PnLAt(exitPrice float64) float64 {
	basis := p.basis()
	if basis <= 0 {
		return 0
	}
	move := (exitPrice - basis) / basis
	if p.Side == market.Short {
		move = -move
	}
	if p.DCA {
		return p.CumMargin() * p.Leverage * move
	}
	return p.SizeUSDT * p.Leverage * move
}

// CumMargin sums the margin committed by filled steps.
func (p *Position) CumMargin() float64 {
	total := 0.0
	for _, s := range p.Steps {
		total += s.Margin
	}
	return total
}

// ExcursionPcts reports max-favorable and max-adverse excursion as signed
// percentages of the entry basis.
func (p *Position) ExcursionPcts() (mfe, mae float64) {
	basis := p.basis()
	if basis <= 0 {
		return 0, 0
	}
	mfe = (p.MaxFavorable - basis) / basis * 100
	mae = (p.MaxAdverse - basis) / basis * 100
	if p.Side == market.Short {
		mfe, mae = -mfe, -mae
	}
	return mfe, mae
}

// HoldingTime is the wall-clock duration the position has been open.
func (p *Position) HoldingTime(now time.Time) time.Duration {
	if p.Status == Closed {
		return p.ClosedAt.Sub(p.OpenedAt)
	}
	return now.Sub(p.OpenedAt)
}
