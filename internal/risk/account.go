package risk

import (
	"errors"
	"sync"
)

const epsilon = 1e-9

// Account tracks the virtual bank backing DCA positions: margin reserved by
// open steps and realized profit and loss from closed positions.
type Account struct {
	mu       sync.Mutex
	bank     float64
	reserved float64
	realized float64
}

// NewAccount constructs an account with the configured bank.
func NewAccount(bank float64) *Account {
	return &Account{bank: bank}
}

// Reserve sets margin aside for a step fill; fails when the bank is exhausted.
func (a *Account) Reserve(margin float64) error {
	if margin <= 0 {
		return errors.New("margin must be positive")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reserved+margin > a.bank+a.realized+epsilon {
		return errors.New("insufficient bank for step margin")
	}
	a.reserved += margin
	return nil
}

// Release returns reserved margin and books the realized result of a close.
func (a *Account) Release(margin, realized float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reserved -= margin
	if a.reserved < 0 {
		a.reserved = 0
	}
	a.realized += realized
}

// Equity is bank plus accumulated realized PnL.
func (a *Account) Equity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bank + a.realized
}

// Reserved reports margin currently committed to open steps.
func (a *Account) Reserved() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reserved
}

// Realized reports accumulated realized PnL.
func (a *Account) Realized() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realized
}
