package risk

import (
	"math"
	"testing"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
)

func TestPlanMarginsGeometricSum(t *testing.T) {
	// bank=1500, 7 levels, growth 2.0 -> margins sum to 1000,
	// first ~7.87, last ~503.9
	plan := PlanMargins(1500, 2.0/3.0, 7, 2.0)
	if len(plan) != 7 {
		t.Fatalf("expected 7 steps, got %d", len(plan))
	}
	sum := 0.0
	for _, m := range plan {
		sum += m
	}
	if math.Abs(sum-1000) > 1e-6 {
		t.Fatalf("plan sum = %.6f, want 1000", sum)
	}
	if math.Abs(plan[0]-1000.0/127.0) > 1e-6 {
		t.Fatalf("first step = %.4f, want %.4f", plan[0], 1000.0/127.0)
	}
	if math.Abs(plan[6]-plan[0]*64) > 1e-6 {
		t.Fatalf("last step = %.4f, want %.4f", plan[6], plan[0]*64)
	}
	for i := 1; i < len(plan); i++ {
		if math.Abs(plan[i]/plan[i-1]-2.0) > 1e-9 {
			t.Fatalf("growth ratio broken at step %d", i)
		}
	}
}

func TestPlanMarginsSumHoldsForAnyGrowth(t *testing.T) {
	for _, growth := range []float64{1.0, 1.3, 1.6, 2.0, 3.5} {
		plan := PlanMargins(1500, 2.0/3.0, 5, growth)
		sum := 0.0
		for _, m := range plan {
			sum += m
		}
		if math.Abs(sum-1000) > 1e-6 {
			t.Fatalf("growth %.2f: sum = %.6f, want 1000", growth, sum)
		}
	}
}

func TestPlanMarginsDegenerateInputs(t *testing.T) {
	if PlanMargins(0, 0.5, 5, 2) != nil {
		t.Fatalf("zero bank must yield nil plan")
	}
	if PlanMargins(1000, 0.5, 0, 2) != nil {
		t.Fatalf("zero levels must yield nil plan")
	}
}

func TestGrowthFor(t *testing.T) {
	if g := GrowthFor(1.0, 1.0, 1.5, 2.0, 1.6); g != 1.6 {
		t.Fatalf("thin range should select thin growth, got %.2f", g)
	}
	if g := GrowthFor(3.0, 1.0, 1.5, 2.0, 1.6); g != 2.0 {
		t.Fatalf("wide range should keep base growth, got %.2f", g)
	}
}

func TestStopDistancePicksLarger(t *testing.T) {
	// 0.2% of 100 = 0.2; ATR-scaled 0.5 wins
	if d := StopDistance(100, 0.5, 0.2, 1.0); d != 0.5 {
		t.Fatalf("stop distance = %.4f, want 0.5", d)
	}
	// tiny ATR falls back to the fixed percentage
	if d := StopDistance(100, 0.01, 0.2, 1.0); d != 0.2 {
		t.Fatalf("stop distance = %.4f, want 0.2", d)
	}
}

func TestAggressionFactorSaturates(t *testing.T) {
	if f := AggressionFactor(0, 0.5); f != 1 {
		t.Fatalf("zero margin factor = %.2f", f)
	}
	if f := AggressionFactor(0.25, 0.5); math.Abs(f-1.25) > 1e-9 {
		t.Fatalf("half margin factor = %.2f", f)
	}
	if f := AggressionFactor(5, 0.5); f != 1.5 {
		t.Fatalf("factor must cap at 1.5, got %.2f", f)
	}
}

func TestLiquidationPriceMatchesLeverageApprox(t *testing.T) {
	// equity backing = notional/leverage, zero maintenance margin:
	// long liq collapses to entry*(1-1/lev)
	entry, lev := 100.0, 20.0
	qty := 1.0
	equity := entry * qty / lev
	liq := LiquidationPrice(market.Long, entry, qty, equity, 0)
	if math.Abs(liq-entry*(1-1/lev)) > 1e-9 {
		t.Fatalf("long liq = %.4f, want %.4f", liq, entry*(1-1/lev))
	}
	liqShort := LiquidationPrice(market.Short, entry, qty, equity, 0)
	if math.Abs(liqShort-entry*(1+1/lev)) > 1e-9 {
		t.Fatalf("short liq = %.4f, want %.4f", liqShort, entry*(1+1/lev))
	}
}

func TestLiquidationPriceMaintenanceMarginTightens(t *testing.T) {
	base := LiquidationPrice(market.Long, 100, 1, 5, 0)
	tighter := LiquidationPrice(market.Long, 100, 1, 5, 0.005)
	if !(tighter > base) {
		t.Fatalf("maintenance margin must raise the long liq price: %.4f vs %.4f", tighter, base)
	}
}

func TestAccountReserveRelease(t *testing.T) {
	acct := NewAccount(100)
	if err := acct.Reserve(60); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := acct.Reserve(50); err == nil {
		t.Fatalf("expected over-reservation to fail")
	}
	acct.Release(60, 12.5)
	if acct.Reserved() != 0 {
		t.Fatalf("reserved = %.2f, want 0", acct.Reserved())
	}
	if acct.Realized() != 12.5 {
		t.Fatalf("realized = %.2f", acct.Realized())
	}
	if acct.Equity() != 112.5 {
		t.Fatalf("equity = %.2f", acct.Equity())
	}
}
