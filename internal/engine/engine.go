// Package engine ties the pipeline together: the scan scheduler, the opener,
// the position monitor, and the operator control surface.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/config"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/exchange"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/journal"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/metrics"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/notify"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/position"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/risk"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/threshold"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/universe"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/util"
)

// Engine owns all mutable trading state. Scan cycles and the monitor loop
// run on separate goroutines; the positions map is guarded by mu.
type Engine struct {
	log      zerolog.Logger
	cfg      *config.Config
	gw       exchange.Gateway
	fetch    *exchange.Fetcher
	stream   *exchange.TickerStream
	jrnl     journal.Journal
	notifier notify.Notifier
	account  *risk.Account
	thresh   *threshold.Controller
	cooldown *universe.CooldownRegistry
	filter   universe.Filter
	resv     *ReservationSet

	clock     func() time.Time
	touchWait time.Duration
	touchPoll time.Duration

	mu        sync.Mutex
	enabled   bool
	positions map[string]*position.Position
	releases  map[string]func()
	rotation  int
	lastBeat  time.Time

	openWG sync.WaitGroup
}

func New(log zerolog.Logger, cfg *config.Config, gw exchange.Gateway, fetch *exchange.Fetcher, stream *exchange.TickerStream, jrnl journal.Journal, notifier notify.Notifier) *Engine {
	bank := cfg.DCA.Bank
	if !cfg.DCA.Enabled || bank <= 0 {
		bank = cfg.Risk.PositionSizeUSDT * float64(cfg.Risk.MaxPositions)
	}
	e := &Engine{
		log:      log.With().Str("component", "engine").Logger(),
		cfg:      cfg,
		gw:       gw,
		fetch:    fetch,
		stream:   stream,
		jrnl:     jrnl,
		notifier: notifier,
		account:  risk.NewAccount(bank),
		thresh: threshold.New(threshold.Config{
			Base:          cfg.Threshold.Base,
			ScoreMin:      cfg.Threshold.ScoreMin,
			ScoreMax:      cfg.Threshold.ScoreMax,
			Pad:           cfg.Threshold.Pad,
			Smoothing:     cfg.Threshold.Smoothing,
			MaxJump:       cfg.Threshold.MaxJump,
			MinSample:     cfg.Threshold.MinSample,
			ExploreStep:   cfg.Threshold.ExploreStep,
			LongOffset:    cfg.Threshold.LongOffset,
			MaxVetoesIdle: cfg.Threshold.MaxVetoesIdle,
		}),
		cooldown:  universe.NewCooldownRegistry(),
		filter:    universe.NewFilter(cfg.Exchange.QuoteAsset, cfg.Universe.MinQuoteVolumeUSD, cfg.Universe.MinPrice, cfg.Universe.ExcludedBases),
		resv:      NewReservationSet(),
		clock:     time.Now,
		touchWait: market.TimeframeDuration(cfg.Gate.Timeframe),
		touchPoll: time.Second,
		positions: make(map[string]*position.Position),
		releases:  make(map[string]func()),
	}
	return e
}

// Loop runs the scan and monitor cadences until the context ends, then
// snapshots state to disk.
func (e *Engine) Loop(ctx context.Context) {
	scanTick := time.NewTicker(time.Duration(e.cfg.Scan.IntervalSec) * time.Second)
	defer scanTick.Stop()
	monitorTick := time.NewTicker(time.Duration(e.cfg.Scan.MonitorSec) * time.Second)
	defer monitorTick.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-monitorTick.C:
				e.monitorOnce(ctx)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			e.openWG.Wait()
			if err := e.SaveState(); err != nil {
				e.log.Error().Err(err).Msg("state snapshot failed on shutdown")
			}
			return
		case <-scanTick.C:
			e.safeScan(ctx)
		}
	}
}

// safeScan isolates a scan cycle: a panic is logged and followed by a short
// cooldown sleep instead of taking down the process.
func (e *Engine) safeScan(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("scan cycle panicked")
			select {
			case <-ctx.Done():
			case <-time.After(10 * time.Second):
			}
		}
	}()
	e.scanOnce(ctx)
}

// Enabled reports whether scanning is switched on.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Run enables scanning. Part of the operator command surface.
func (e *Engine) Run() string {
	e.mu.Lock()
	e.enabled = true
	e.mu.Unlock()
	e.log.Info().Msg("scanning enabled")
	return "scanning started"
}

// Stop disables scanning; open positions keep being monitored.
func (e *Engine) Stop() string {
	e.mu.Lock()
	e.enabled = false
	e.mu.Unlock()
	e.log.Info().Msg("scanning disabled")
	return "scanning stopped (open positions still monitored)"
}

// Status renders the operator status summary.
func (e *Engine) Status() string {
	e.mu.Lock()
	enabled := e.enabled
	open := make([]position.Position, 0, len(e.positions))
	for _, p := range e.positions {
		if p.Status == position.Active {
			open = append(open, *p)
		}
	}
	e.mu.Unlock()
	sort.Slice(open, func(i, j int) bool { return open[i].OpenedAt.Before(open[j].OpenedAt) })

	var b strings.Builder
	state := "stopped"
	if enabled {
		state = "running"
	}
	fmt.Fprintf(&b, "state: %s\n", state)
	fmt.Fprintf(&b, "threshold: %.3f\n", e.thresh.Value())
	fmt.Fprintf(&b, "equity: %.2f USDT (reserved %.2f)\n", e.account.Equity(), e.account.Reserved())
	fmt.Fprintf(&b, "open positions: %d", len(open))
	for _, p := range open {
		fmt.Fprintf(&b, "\n  %s %s @ %s sl %s tp %s",
			p.Symbol, p.Side, util.FormatPrice(p.Basis()), util.FormatPrice(p.Stop), util.FormatPrice(p.Target))
	}
	return b.String()
}

// Threshold exposes the current acceptance threshold.
func (e *Engine) Threshold() float64 { return e.thresh.Value() }

// Equity reports account equity and reserved margin.
func (e *Engine) Equity() (float64, float64) {
	return e.account.Equity(), e.account.Reserved()
}

// Positions returns copies of all tracked positions, open ones first.
func (e *Engine) Positions() []position.Position {
	e.mu.Lock()
	out := make([]position.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status == position.Active
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// ClosePositions force-closes one symbol or every open position at the best
// known price. Part of the operator command surface.
func (e *Engine) ClosePositions(target string) string {
	target = strings.ToUpper(strings.TrimSpace(target))
	all := target == "" || target == "ALL"

	e.mu.Lock()
	victims := make([]*position.Position, 0, len(e.positions))
	for _, p := range e.positions {
		if p.Status != position.Active {
			continue
		}
		if all || p.Symbol == target {
			victims = append(victims, p)
		}
	}
	e.mu.Unlock()

	closed := 0
	for _, p := range victims {
		px := e.exitPrice(p)
		if e.closePosition(p, position.ReasonForced, px, e.clock()) {
			closed++
		}
	}
	return fmt.Sprintf("closed %d position(s)", closed)
}

// exitPrice picks the best known price for an immediate close, falling back
// to the entry basis when no quote is available.
func (e *Engine) exitPrice(p *position.Position) float64 {
	if px, ok := e.lastPrice(context.Background(), p.Symbol); ok {
		return px
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return p.Basis()
}

// lastPrice prefers the websocket cache, then a REST ticker.
func (e *Engine) lastPrice(ctx context.Context, symbol string) (float64, bool) {
	if e.stream != nil {
		if px, ok := e.stream.Last(symbol); ok {
			return px, true
		}
	}
	if tk, ok := e.fetch.Ticker(ctx, symbol); ok && tk.Last > 0 {
		return tk.Last, true
	}
	return 0, false
}

func (e *Engine) activeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, p := range e.positions {
		if p.Status == position.Active {
			n++
		}
	}
	return n
}

func (e *Engine) activeOnSymbol(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, p := range e.positions {
		if p.Status == position.Active && p.Symbol == symbol {
			n++
		}
	}
	return n
}

// adopt registers a freshly opened position together with its reservation
// release hook.
func (e *Engine) adopt(p *position.Position, release func()) {
	e.mu.Lock()
	e.positions[p.SignalID] = p
	if release != nil {
		e.releases[p.SignalID] = release
	}
	e.mu.Unlock()
	metrics.ActivePositions.Set(float64(e.activeCount()))
}

// closePosition finalizes a position exactly once: books PnL, frees the
// margin and the symbol reservation, starts the cooldown, journals, alerts.
// The transition to CLOSED happens under the engine lock, so concurrent
// closers (monitor, force-close) cannot both book the same margin release.
func (e *Engine) closePosition(p *position.Position, reason position.CloseReason, exitPx float64, now time.Time) bool {
	e.mu.Lock()
	if !p.Close(reason, exitPx, now) {
		e.mu.Unlock()
		return false
	}
	margin := p.SizeUSDT
	if p.DCA {
		margin = p.CumMargin()
	}
	release := e.releases[p.SignalID]
	delete(e.releases, p.SignalID)
	e.mu.Unlock()

	e.account.Release(margin, p.RealizedPnL)
	if release != nil {
		release()
	}

	if d := time.Duration(e.cfg.Risk.CooldownSec) * time.Second; d > 0 {
		e.cooldown.Set(p.Symbol, d, now)
	}

	mfe, mae := p.ExcursionPcts()
	rec := journal.SignalRecord{
		SignalID:    p.SignalID,
		ExitPrice:   exitPx,
		CloseTime:   now,
		RealizedPnL: p.RealizedPnL,
		Reason:      string(reason),
		StepsFilled: maxInt(len(p.Steps), 1),
		AvgPrice:    p.Basis(),
		LiqEstimate: e.liqEstimate(p),
		MFEPct:      mfe,
		MAEPct:      mae,
	}
	if err := e.jrnl.RecordClose(rec); err != nil {
		e.log.Error().Err(err).Str("signal", p.SignalID).Msg("journal close failed")
	}

	metrics.ClosesTotal.WithLabelValues(p.Symbol, string(reason)).Inc()
	metrics.ActivePositions.Set(float64(e.activeCount()))

	e.notifier.Notify(context.Background(),
		notify.CloseAlert(p.Symbol, string(p.Side), string(reason), exitPx, p.RealizedPnL, p.HoldingTime(now)))

	e.log.Info().
		Str("symbol", p.Symbol).
		Str("side", string(p.Side)).
		Str("reason", string(reason)).
		Float64("exit", exitPx).
		Float64("pnl", p.RealizedPnL).
		Msg("position closed")
	return true
}

func (e *Engine) liqEstimate(p *position.Position) float64 {
	if !p.DCA || p.Qty <= 0 {
		return 0
	}
	return risk.LiquidationPrice(p.Side, p.Basis(), p.Qty, p.CumMargin(), e.cfg.Risk.MaintenanceMarginPct/100)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
