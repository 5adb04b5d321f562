package engine

import (
	"context"
	"time"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/gate"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/market"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/metrics"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/scorer"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/universe"
)

// scanOnce runs a full scan cycle: rebuild the universe, walk it in chunks
// under a time budget, gate and score every symbol, open what clears the
// threshold, then feed the score sample back into the threshold controller.
func (e *Engine) scanOnce(ctx context.Context) {
	if !e.Enabled() {
		return
	}
	now := e.clock()
	e.cooldown.Purge(now)

	symbols := e.buildUniverse(ctx)
	if len(symbols) == 0 {
		return
	}

	e.mu.Lock()
	offset := e.rotation
	e.mu.Unlock()
	symbols = universe.Rotate(symbols, offset)

	refPct, refOK := e.referenceMomentum(ctx)

	var sample []float64
	opened, vetoes, processed := 0, 0, 0
	deadline := now.Add(time.Duration(e.cfg.Scan.TimeBudgetSec) * time.Second)

	for start := 0; start < len(symbols); start += e.cfg.Scan.ChunkSize {
		if e.clock().After(deadline) || ctx.Err() != nil {
			break
		}
		end := start + e.cfg.Scan.ChunkSize
		if end > len(symbols) {
			end = len(symbols)
		}
		chunk := e.eligible(symbols[start:end])
		processed += end - start
		if len(chunk) == 0 {
			continue
		}

		batch := e.fetch.BarsBatch(ctx, chunk, e.cfg.Gate.Timeframe, e.cfg.Scan.BarLimit)
		for _, sym := range chunk {
			series, ok := batch[sym]
			if !ok {
				continue
			}
			score, outcome := e.evaluateSymbol(ctx, series, refPct, refOK, opened)
			switch outcome {
			case outcomeVeto:
				vetoes++
			case outcomeOpened:
				opened++
			}
			if score != nil {
				sample = append(sample, *score)
			}
		}
	}

	e.mu.Lock()
	e.rotation = (offset + processed) % maxInt(len(symbols), 1)
	e.mu.Unlock()

	e.thresh.Update(sample, opened, vetoes, e.clock())
	metrics.ScansTotal.Inc()

	e.heartbeat(len(symbols), len(sample), opened, vetoes)

	if err := e.SaveState(); err != nil {
		e.log.Warn().Err(err).Msg("state snapshot failed")
	}
}

// buildUniverse refreshes listings and tickers and applies the liquidity
// filter.
func (e *Engine) buildUniverse(ctx context.Context) []string {
	markets, err := e.gw.ListMarkets(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("market listing failed")
		metrics.FetchErrorsTotal.WithLabelValues("markets").Inc()
		return nil
	}
	tickers, ok := e.fetch.TickersBatch(ctx)
	if !ok {
		return nil
	}
	return universe.Build(markets, tickers, e.filter)
}

// eligible drops symbols that cannot open anyway: cooling down, already
// reserved, or at the per-symbol cap.
func (e *Engine) eligible(symbols []string) []string {
	now := e.clock()
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if e.cooldown.Active(sym, now) {
			continue
		}
		if e.resv.Held(sym) {
			continue
		}
		if e.activeOnSymbol(sym) >= e.cfg.Risk.MaxPerSymbol {
			continue
		}
		out = append(out, sym)
	}
	return out
}

type evalOutcome int

const (
	outcomeSkip evalOutcome = iota
	outcomeVeto
	outcomeOpened
	outcomeScored
)

// evaluateSymbol runs gate, scoring, and the threshold check for one symbol.
// The returned score joins the scan sample when the symbol was scored.
func (e *Engine) evaluateSymbol(ctx context.Context, series market.Series, refPct float64, refOK bool, openedSoFar int) (*float64, evalOutcome) {
	metrics.SymbolsScanned.Inc()
	now := e.clock()

	res := gate.Evaluate(series, e.gateConfig(), now)
	if res.Reject != gate.RejectNone || !res.Passed {
		return nil, outcomeSkip
	}
	metrics.GatePassTotal.WithLabelValues(string(res.Side)).Inc()

	htf, _ := e.fetch.Bars(ctx, series.Symbol, e.cfg.Score.HTFTimeframe, e.cfg.Score.HTFLimit)
	cand, veto := scorer.Score(res, scorer.Context{
		HTF:                  htf,
		ReferenceMomentumPct: refPct,
		ReferenceOK:          refOK,
	}, e.scoreConfig())
	if veto != scorer.VetoNone {
		metrics.VetoTotal.WithLabelValues(veto).Inc()
		return nil, outcomeVeto
	}

	score := cand.Score
	minScore := e.thresh.ForSide(cand.Side)
	if score < minScore {
		return &score, outcomeScored
	}
	if openedSoFar >= e.cfg.Scan.MaxOpensPerScan && e.cfg.Scan.MaxOpensPerScan > 0 {
		return &score, outcomeScored
	}
	if e.activeCount() >= e.cfg.Risk.MaxPositions {
		return &score, outcomeScored
	}

	if e.tryOpen(ctx, cand, series, score-minScore) {
		return &score, outcomeOpened
	}
	return &score, outcomeScored
}

// referenceMomentum measures the recent signed percent move of the market
// reference asset. A failed fetch degrades to no reference context.
func (e *Engine) referenceMomentum(ctx context.Context) (float64, bool) {
	ref := e.cfg.Score.ReferenceSymbol
	if ref == "" {
		return 0, false
	}
	lookback := e.cfg.Score.TrendLookback
	series, ok := e.fetch.Bars(ctx, ref, e.cfg.Gate.Timeframe, lookback+2)
	if !ok || series.Len() < lookback+1 {
		return 0, false
	}
	closes := series.Closes()
	then := closes[len(closes)-1-lookback]
	last := closes[len(closes)-1]
	if then <= 0 {
		return 0, false
	}
	return (last - then) / then * 100, true
}

func (e *Engine) heartbeat(universeSize, sampled, opened, vetoes int) {
	now := e.clock()
	e.mu.Lock()
	due := e.lastBeat.IsZero() || now.Sub(e.lastBeat) >= time.Duration(e.cfg.Scan.HeartbeatSec)*time.Second
	if due {
		e.lastBeat = now
	}
	e.mu.Unlock()
	if !due {
		return
	}
	e.log.Info().
		Int("universe", universeSize).
		Int("scored", sampled).
		Int("opened", opened).
		Int("vetoes", vetoes).
		Float64("threshold", e.thresh.Value()).
		Int("active", e.activeCount()).
		Msg("scan heartbeat")
}

func (e *Engine) gateConfig() gate.Config {
	g := e.cfg.Gate
	return gate.Config{
		Timeframe:       g.Timeframe,
		ATRPeriod:       g.ATRPeriod,
		ATRSpikeMult:    g.ATRSpikeMult,
		WickRatio:       g.WickRatio,
		VolWindow:       g.VolWindow,
		VolZThreshold:   g.VolZThreshold,
		MinBodyATRFrac:  g.MinBodyATRFrac,
		SMAPeriod:       g.SMAPeriod,
		MinPrice:        e.cfg.Universe.MinPrice,
		LongWickRatio:   g.LongWickRatio,
		LongMaxSpikeATR: g.LongMaxSpikeATR,
	}
}

func (e *Engine) scoreConfig() scorer.Config {
	s := e.cfg.Score
	return scorer.Config{
		TrendSMAPeriod:    s.TrendSMAPeriod,
		TrendLookback:     s.TrendLookback,
		ATRPeriod:         e.cfg.Gate.ATRPeriod,
		StrongTrendATR:    s.StrongTrendATR,
		ReferenceVetoPct:  s.ReferenceVetoPct,
		WickWeight:        s.WickWeight,
		SpikeWeight:       s.SpikeWeight,
		TrendPenalty:      s.TrendPenalty,
		TrendBonus:        s.TrendBonus,
		ReferencePenalty:  s.ReferencePenalty,
		MeanRevPenalty:    s.MeanRevPenalty,
		MissingHTFPenalty: s.MissingHTFPenalty,
		ExtraGateBonus:    s.ExtraGateBonus,
		LongBias:          s.LongBias,
		WickRatio:         e.cfg.Gate.WickRatio,
		ATRSpikeMult:      e.cfg.Gate.ATRSpikeMult,
	}
}
