package position

import (
	"math"
	"testing"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
)

func trailParams() TrailParams {
	return TrailParams{
		ArmFracs:          []float64{0.5, 0.7, 0.85},
		LockFracs:         []float64{0.3, 0.5, 0.7},
		ChandelierATRMult: 3.0,
		TickSize:          0.01,
		MinTickSteps:      2,
	}
}

func newTrailLong() *Position {
	return &Position{
		Side:   market.Long,
		Status: Active,
		Entry:  100,
		Stop:   99.8,
		Target: 101,
	}
}

func TestTrailingArmsOnlyPastFirstFraction(t *testing.T) {
	p := newTrailLong()
	tp := trailParams()

	if _, moved := p.UpdateTrailing(100.4, 0.5, tp); moved {
		t.Fatal("40% progress must not arm the ratchet")
	}
	if p.TrailStage != 0 {
		t.Fatalf("stage = %d, want 0", p.TrailStage)
	}

	stop, moved := p.UpdateTrailing(100.5, 0.5, tp)
	if !moved || p.TrailStage != 1 {
		t.Fatalf("moved=%v stage=%d", moved, p.TrailStage)
	}
	// lock 30% of the target distance; chandelier is far below
	if math.Abs(stop-100.3) > 1e-9 {
		t.Fatalf("stop = %v, want 100.3", stop)
	}
}

func TestTrailingChandelierBeatsLockWhenTighter(t *testing.T) {
	p := newTrailLong()
	tp := trailParams()
	p.UpdateTrailing(100.5, 0.5, tp)

	stop, moved := p.UpdateTrailing(100.7, 0.05, tp)
	if !moved || p.TrailStage != 2 {
		t.Fatalf("moved=%v stage=%d", moved, p.TrailStage)
	}
	// chandelier 100.7 - 3*0.05 = 100.55 is above the 50% lock at 100.5
	if math.Abs(stop-100.55) > 1e-9 {
		t.Fatalf("stop = %v, want 100.55", stop)
	}
}

func TestTrailingNeverMovesAgainstThePosition(t *testing.T) {
	p := newTrailLong()
	tp := trailParams()
	p.UpdateTrailing(100.5, 0.5, tp)
	p.UpdateTrailing(100.7, 0.05, tp)
	before := p.Stop

	if _, moved := p.UpdateTrailing(100.4, 0.05, tp); moved {
		t.Fatal("a pullback must not move the stop")
	}
	if p.Stop != before {
		t.Fatalf("stop regressed to %v", p.Stop)
	}
	if p.TrailStage != 2 {
		t.Fatalf("stage regressed to %d", p.TrailStage)
	}
}

func TestTrailingHonorsMinTickStep(t *testing.T) {
	p := newTrailLong()
	tp := trailParams()
	p.UpdateTrailing(100.5, 0.5, tp)

	// candidate identical to the current stop: below the two-tick floor
	if _, moved := p.UpdateTrailing(100.55, 0.5, tp); moved {
		t.Fatal("sub-tick improvement must be ignored")
	}
}

func TestTrailingFullProgressArmsFinalStage(t *testing.T) {
	p := newTrailLong()
	tp := trailParams()

	stop, moved := p.UpdateTrailing(101, 0.05, tp)
	if !moved || p.TrailStage != 3 {
		t.Fatalf("moved=%v stage=%d", moved, p.TrailStage)
	}
	// chandelier 101 - 0.15 beats the 70% lock at 100.7
	if math.Abs(stop-100.85) > 1e-9 {
		t.Fatalf("stop = %v, want 100.85", stop)
	}
}

func TestTrailingShortSide(t *testing.T) {
	p := &Position{Side: market.Short, Status: Active, Entry: 100, Stop: 100.2, Target: 99}
	tp := trailParams()

	stop, moved := p.UpdateTrailing(99.5, 0.5, tp)
	if !moved || p.TrailStage != 1 {
		t.Fatalf("moved=%v stage=%d", moved, p.TrailStage)
	}
	// lock 100 - 0.3, chandelier 99.5 + 1.5 = 101 is worse
	if math.Abs(stop-99.7) > 1e-9 {
		t.Fatalf("stop = %v, want 99.7", stop)
	}

	if _, moved := p.UpdateTrailing(99.8, 0.5, tp); moved {
		t.Fatal("short pullback must not loosen the stop")
	}
}

func TestTrailingUsesAverageBasisForDCA(t *testing.T) {
	p := newTrailLong()
	p.DCA = true
	p.AvgPrice = 99
	p.Target = 100
	p.Stop = 98.5
	tp := trailParams()

	stop, moved := p.UpdateTrailing(99.5, 10, tp) // huge atr, lock wins
	if !moved || p.TrailStage != 1 {
		t.Fatalf("moved=%v stage=%d", moved, p.TrailStage)
	}
	if math.Abs(stop-99.3) > 1e-9 {
		t.Fatalf("stop = %v, want 99.3 (30%% above the 99 average)", stop)
	}
}
