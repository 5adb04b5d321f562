package engine

import (
	"sync"
	"testing"
)

func TestReserveIsExclusive(t *testing.T) {
	r := NewReservationSet()
	release, ok := r.TryReserve("BTC_USDT")
	if !ok {
		t.Fatal("first reserve failed")
	}
	if _, ok := r.TryReserve("BTC_USDT"); ok {
		t.Fatal("second reserve must fail while held")
	}
	if _, ok := r.TryReserve("ETH_USDT"); !ok {
		t.Fatal("other symbols must be unaffected")
	}
	release()
	if r.Held("BTC_USDT") {
		t.Fatal("release did not free the slot")
	}
	if _, ok := r.TryReserve("BTC_USDT"); !ok {
		t.Fatal("re-reserve after release failed")
	}
}

func TestReleaseExactlyOnce(t *testing.T) {
	r := NewReservationSet()
	release, _ := r.TryReserve("BTC_USDT")
	release()

	// a later holder must not be evicted by a stale double release
	release2, ok := r.TryReserve("BTC_USDT")
	if !ok {
		t.Fatal("re-reserve failed")
	}
	release()
	if !r.Held("BTC_USDT") {
		t.Fatal("stale release freed the new holder's slot")
	}
	release2()
	if r.Held("BTC_USDT") {
		t.Fatal("second holder's release did not free the slot")
	}
}

func TestReserveUnderContention(t *testing.T) {
	r := NewReservationSet()
	const workers = 64
	var wg sync.WaitGroup
	wins := make(chan func(), workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, ok := r.TryReserve("HOT_USDT"); ok {
				wins <- release
			}
		}()
	}
	wg.Wait()
	close(wins)

	var releases []func()
	for release := range wins {
		releases = append(releases, release)
	}
	if len(releases) != 1 {
		t.Fatalf("%d goroutines won the reservation, want exactly 1", len(releases))
	}
	releases[0]()
	if r.Len() != 0 {
		t.Fatalf("len = %d after release", r.Len())
	}
}
