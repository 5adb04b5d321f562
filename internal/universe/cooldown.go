package universe

import (
	"sync"
	"time"
)

// CooldownRegistry maps symbols to re-entry expiry timestamps. A symbol is
// suppressed while now is strictly before its expiry; entries are purged
// during housekeeping.
type CooldownRegistry struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

// NewCooldownRegistry builds an empty registry.
func NewCooldownRegistry() *CooldownRegistry {
	return &CooldownRegistry{expires: make(map[string]time.Time)}
}

// Set suppresses a symbol until now+d.
func (c *CooldownRegistry) Set(symbol string, d time.Duration, now time.Time) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.expires[symbol] = now.Add(d)
	c.mu.Unlock()
}

// Active reports whether the symbol is still on cooldown at now.
func (c *CooldownRegistry) Active(symbol string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiry, ok := c.expires[symbol]
	return ok && now.Before(expiry)
}

// Purge removes expired entries and returns how many were dropped.
func (c *CooldownRegistry) Purge(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for symbol, expiry := range c.expires {
		if !now.Before(expiry) {
			delete(c.expires, symbol)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of tracked symbols, expired or not.
func (c *CooldownRegistry) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.expires)
}

// Snapshot copies the registry for persistence.
func (c *CooldownRegistry) Snapshot() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]time.Time, len(c.expires))
	for symbol, expiry := range c.expires {
		out[symbol] = expiry
	}
	return out
}

// Restore replaces the registry contents, dropping entries already expired.
func (c *CooldownRegistry) Restore(entries map[string]time.Time, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expires = make(map[string]time.Time, len(entries))
	for symbol, expiry := range entries {
		if now.Before(expiry) {
			c.expires[symbol] = expiry
		}
	}
}
