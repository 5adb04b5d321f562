// Package threshold maintains the adaptive acceptance threshold: one scalar,
// re-estimated each scan from the empirical score distribution, smoothed and
// rate-limited so it never moves abruptly.
package threshold

import (
	"sync"
	"time"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/metrics"
)

// Config carries the controller tuning.
type Config struct {
	Base          float64
	ScoreMin      float64
	ScoreMax      float64
	Pad           float64
	Smoothing     float64 // weight of the new target in the blend
	MaxJump       float64 // cap on per-cycle change magnitude
	MinSample     int
	ExploreStep   float64
	LongOffset    float64
	MaxVetoesIdle int
}

// Controller owns the threshold scalar. Safe for concurrent use: the
// scheduler updates it at the end of each scan while openers read it.
type Controller struct {
	cfg Config

	mu         sync.Mutex
	value      float64
	lastUpdate time.Time
	lastDelta  float64
}

// New starts the controller at the configured base value, clamped to range.
func New(cfg Config) *Controller {
	c := &Controller{cfg: cfg}
	c.value = market.Clamp(cfg.Base, cfg.ScoreMin, cfg.ScoreMax)
	metrics.ThresholdGauge.Set(c.value)
	return c
}

// Value returns the current base threshold.
func (c *Controller) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// ForSide returns the side-adjusted threshold: longs must clear a fixed
// offset above the base.
func (c *Controller) ForSide(side market.Side) float64 {
	v := c.Value()
	if side == market.Long {
		v += c.cfg.LongOffset
	}
	return v
}

// LastDelta reports the signed change applied by the most recent update.
func (c *Controller) LastDelta() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDelta
}

// quantileLevel picks the quantile to track: lenient for thin samples,
// strict once the sample is rich.
func quantileLevel(n int) float64 {
	switch {
	case n >= 50:
		return 0.95
	case n >= 25:
		return 0.90
	default:
		return 0.85
	}
}

// Update re-estimates the threshold from one scan's score sample. opened is
// the number of positions opened this cycle and vetoes the count of hard
// vetoes; both gate the exploration rule for thin samples. Returns the new
// threshold.
func (c *Controller) Update(sample []float64, opened, vetoes int, now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(sample) < c.cfg.MinSample {
		// exploration: a quiet market with nothing opened and few vetoes
		// lowers the bar by one fixed step
		if opened == 0 && vetoes <= c.cfg.MaxVetoesIdle {
			next := market.Clamp(c.value-c.cfg.ExploreStep, c.cfg.ScoreMin, c.cfg.ScoreMax)
			c.lastDelta = next - c.value
			c.value = next
			c.lastUpdate = now
			metrics.ThresholdGauge.Set(c.value)
		}
		return c.value
	}

	q := market.Quantile(sample, quantileLevel(len(sample)))
	target := market.Clamp(q+c.cfg.Pad, c.cfg.ScoreMin, c.cfg.ScoreMax)
	proposed := (1-c.cfg.Smoothing)*c.value + c.cfg.Smoothing*target

	delta := proposed - c.value
	if delta > c.cfg.MaxJump {
		delta = c.cfg.MaxJump
	} else if delta < -c.cfg.MaxJump {
		delta = -c.cfg.MaxJump
	}

	c.value = market.Clamp(c.value+delta, c.cfg.ScoreMin, c.cfg.ScoreMax)
	c.lastDelta = delta
	c.lastUpdate = now
	metrics.ThresholdGauge.Set(c.value)
	return c.value
}

// Restore reloads a persisted threshold value, clamped to range.
func (c *Controller) Restore(value float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = market.Clamp(value, c.cfg.ScoreMin, c.cfg.ScoreMax)
	c.lastUpdate = at
	metrics.ThresholdGauge.Set(c.value)
}
