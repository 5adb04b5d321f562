package market

import (
	"math"
	"sort"
)

// ATR computes Wilder's average true range over the given period. Returns 0
// when there is not enough history.
func ATR(bars []Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trs = append(trs, trueRange(bars[i], bars[i-1]))
	}
	// seed with a simple mean, then smooth
	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}

func trueRange(cur, prev Bar) float64 {
	tr := cur.High - cur.Low
	if d := math.Abs(cur.High - prev.Close); d > tr {
		tr = d
	}
	if d := math.Abs(cur.Low - prev.Close); d > tr {
		tr = d
	}
	return tr
}

// SMA returns the simple moving average of the final period values.
// Returns NaN when there is not enough history.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// SMAAt returns the simple moving average ending at index i (inclusive).
func SMAAt(values []float64, period, i int) float64 {
	if period <= 0 || i+1 < period || i >= len(values) {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values[i+1-period : i+1] {
		sum += v
	}
	return sum / float64(period)
}

// MeanStd returns the mean and sample standard deviation of the final
// window values.
func MeanStd(values []float64, window int) (float64, float64) {
	if window <= 1 || len(values) < window {
		return math.NaN(), math.NaN()
	}
	sample := values[len(values)-window:]
	mean := 0.0
	for _, v := range sample {
		mean += v
	}
	mean /= float64(window)
	variance := 0.0
	for _, v := range sample {
		d := v - mean
		variance += d * d
	}
	variance /= float64(window - 1)
	return mean, math.Sqrt(variance)
}

// VolumeZ scores the last volume against the rolling window that precedes it.
func VolumeZ(volumes []float64, window int) float64 {
	if len(volumes) < window+1 {
		return math.NaN()
	}
	mean, std := MeanStd(volumes[:len(volumes)-1], window)
	if std <= 0 || math.IsNaN(std) {
		return math.NaN()
	}
	return (volumes[len(volumes)-1] - mean) / std
}

// Quantile returns the q-th empirical quantile (0..1) using linear
// interpolation between order statistics. The input is not mutated.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Finite reports whether every value is a usable number.
func Finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
