package market

import (
	"math"
	"testing"
	"time"
)

func flatBars(n int, rng float64) []Bar {
	bars := make([]Bar, n)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = Bar{
			Ts:     ts.Add(time.Duration(i) * time.Minute),
			Open:   100,
			High:   100 + rng/2,
			Low:    100 - rng/2,
			Close:  100,
			Volume: 10,
		}
	}
	return bars
}

func TestATRConstantRange(t *testing.T) {
	atr := ATR(flatBars(30, 2.0), 14)
	if math.Abs(atr-2.0) > 1e-9 {
		t.Fatalf("expected ATR 2.0 on constant-range bars, got %.6f", atr)
	}
}

func TestATRInsufficientHistory(t *testing.T) {
	if atr := ATR(flatBars(10, 2.0), 14); atr != 0 {
		t.Fatalf("expected 0 for short history, got %.6f", atr)
	}
}

func TestSMA(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	if got := SMA(vals, 3); math.Abs(got-4) > 1e-9 {
		t.Fatalf("SMA = %.4f, want 4", got)
	}
	if got := SMAAt(vals, 3, 2); math.Abs(got-2) > 1e-9 {
		t.Fatalf("SMAAt = %.4f, want 2", got)
	}
	if !math.IsNaN(SMA(vals, 10)) {
		t.Fatalf("expected NaN for short input")
	}
}

func TestVolumeZSpike(t *testing.T) {
	vols := make([]float64, 51)
	for i := range vols {
		vols[i] = 10 + float64(i%2) // small variance
	}
	vols[50] = 100
	z := VolumeZ(vols, 50)
	if z < 2 {
		t.Fatalf("expected large z-score for volume spike, got %.2f", z)
	}
}

func TestVolumeZZeroVariance(t *testing.T) {
	vols := make([]float64, 51)
	for i := range vols {
		vols[i] = 10
	}
	if !math.IsNaN(VolumeZ(vols, 50)) {
		t.Fatalf("expected NaN on zero variance window")
	}
}

func TestQuantile(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := Quantile(vals, 0); got != 1 {
		t.Fatalf("q0 = %.2f", got)
	}
	if got := Quantile(vals, 1); got != 10 {
		t.Fatalf("q1 = %.2f", got)
	}
	if got := Quantile(vals, 0.5); math.Abs(got-5.5) > 1e-9 {
		t.Fatalf("median = %.2f, want 5.5", got)
	}
}

func TestBarGeometry(t *testing.T) {
	b := Bar{Open: 10, High: 14, Low: 8, Close: 11}
	if b.Body() != 1 {
		t.Fatalf("body = %.2f", b.Body())
	}
	if b.UpperWick() != 3 {
		t.Fatalf("upper wick = %.2f", b.UpperWick())
	}
	if b.LowerWick() != 2 {
		t.Fatalf("lower wick = %.2f", b.LowerWick())
	}
	if b.Range() != 6 {
		t.Fatalf("range = %.2f", b.Range())
	}
}

func TestTimeframeDuration(t *testing.T) {
	if TimeframeDuration("1m") != time.Minute {
		t.Fatalf("1m mismatch")
	}
	if TimeframeDuration("15m") != 15*time.Minute {
		t.Fatalf("15m mismatch")
	}
	if TimeframeDuration("4h") != 4*time.Hour {
		t.Fatalf("4h mismatch")
	}
	if TimeframeDuration("1d") != 24*time.Hour {
		t.Fatalf("1d mismatch")
	}
}

func TestSeriesDropLast(t *testing.T) {
	s := Series{Symbol: "X", Timeframe: "1m", Bars: flatBars(3, 1)}
	trimmed := s.DropLast()
	if trimmed.Len() != 2 || s.Len() != 3 {
		t.Fatalf("DropLast should not mutate the receiver")
	}
}
