package engine

import "sync"

// ReservationSet prevents two openers from racing on the same symbol. A
// successful TryReserve returns a release func that frees the slot on its
// first call only; later calls are no-ops.
type ReservationSet struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewReservationSet() *ReservationSet {
	return &ReservationSet{held: make(map[string]struct{})}
}

func (r *ReservationSet) TryReserve(symbol string) (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.held[symbol]; exists {
		return nil, false
	}
	r.held[symbol] = struct{}{}
	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.held, symbol)
			r.mu.Unlock()
		})
	}
	return release, true
}

func (r *ReservationSet) Held(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.held[symbol]
	return ok
}

func (r *ReservationSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}
