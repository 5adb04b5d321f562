// Package journal persists signal outcomes for later analysis.
package journal

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// SignalRecord is one row per signal, written at open and completed at close.
type SignalRecord struct {
	SignalID    string
	Symbol      string
	Side        string
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	Score       float64
	Threshold   float64
	WickRatio   float64
	SpikeMult   float64
	VolumeZ     float64
	Leverage    float64
	MarginUSDT  float64
	OpenTime    time.Time

	ExitPrice   float64
	CloseTime   time.Time
	RealizedPnL float64
	Reason      string
	StepsFilled int
	AvgPrice    float64
	LiqEstimate float64
	MFEPct      float64
	MAEPct      float64
}

// Journal is the outcome sink. Implementations must tolerate replays: an
// open for a known signal id is a no-op, a close only lands once.
type Journal interface {
	RecordOpen(SignalRecord) error
	RecordClose(SignalRecord) error
	Close() error
}

// NewSignalID mints a lexically sortable unique id for a signal.
func NewSignalID(ts time.Time) string {
	return ulid.MustNew(ulid.Timestamp(ts), rand.Reader).String()
}

// Nop discards everything; used when journaling is disabled.
type Nop struct{}

func (Nop) RecordOpen(SignalRecord) error  { return nil }
func (Nop) RecordClose(SignalRecord) error { return nil }
func (Nop) Close() error                   { return nil }
