package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/position"
)

// persistedState is the crash-recovery snapshot written after every scan and
// on shutdown.
type persistedState struct {
	SavedAt   time.Time                     `json:"saved_at"`
	Enabled   bool                          `json:"enabled"`
	Threshold float64                       `json:"threshold"`
	Rotation  int                           `json:"rotation"`
	Positions map[string]*position.Position `json:"positions"`
	Cooldowns map[string]time.Time          `json:"cooldowns"`
}

// SaveState writes the snapshot atomically: temp file in the same directory,
// then rename.
func (e *Engine) SaveState() error {
	path := e.cfg.App.StatePath
	if path == "" {
		return nil
	}

	e.mu.Lock()
	state := persistedState{
		SavedAt:   e.clock(),
		Enabled:   e.enabled,
		Threshold: e.thresh.Value(),
		Rotation:  e.rotation,
		Positions: make(map[string]*position.Position, len(e.positions)),
		Cooldowns: e.cooldown.Snapshot(),
	}
	for id, p := range e.positions {
		if p.Status == position.Active {
			cp := *p
			state.Positions[id] = &cp
		}
	}
	e.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// LoadState restores a snapshot: open positions are re-adopted with their
// margin and symbol reservation re-established. A missing file is not an
// error; a corrupt one is.
func (e *Engine) LoadState() error {
	path := e.cfg.App.StatePath
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read state: %w", err)
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	now := e.clock()
	e.thresh.Restore(state.Threshold, now)
	e.cooldown.Restore(state.Cooldowns, now)

	e.mu.Lock()
	e.enabled = state.Enabled
	e.rotation = state.Rotation
	e.mu.Unlock()

	for _, p := range state.Positions {
		if p == nil || p.Status != position.Active {
			continue
		}
		release, ok := e.resv.TryReserve(p.Symbol)
		if !ok {
			e.log.Warn().Str("symbol", p.Symbol).Msg("duplicate position in snapshot dropped")
			continue
		}
		margin := p.SizeUSDT
		if p.DCA {
			margin = p.CumMargin()
		}
		if err := e.account.Reserve(margin); err != nil {
			e.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("restored position exceeds bank, dropped")
			release()
			continue
		}
		e.adopt(p, release)
	}

	e.log.Info().
		Time("saved_at", state.SavedAt).
		Int("positions", len(state.Positions)).
		Float64("threshold", state.Threshold).
		Bool("enabled", state.Enabled).
		Msg("state restored")
	return nil
}
