package exchange

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/contract/kline/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"code":0,"data":{
			"time":[1700000000,1700000060,1700000120],
			"open":[1.0,1.1,1.2],
			"high":[1.05,1.15,1.25],
			"low":[0.95,1.05,1.15],
			"close":[1.1,1.2,1.3],
			"vol":[100,200,300]}}`)
	})
	mux.HandleFunc("/api/v1/contract/ticker", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "" {
			fmt.Fprint(w, `{"success":true,"code":0,"data":{"symbol":"BTC_USDT","lastPrice":50000.5,"bid1":50000,"ask1":50001,"amount24":9e8,"timestamp":1700000000000}}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"code":0,"data":[
			{"symbol":"BTC_USDT","lastPrice":50000.5,"amount24":9e8},
			{"symbol":"ETH_USDT","lastPrice":3000.25,"amount24":5e8}]}`)
	})
	mux.HandleFunc("/api/v1/contract/detail", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"code":0,"data":[
			{"symbol":"BTC_USDT","baseCoin":"BTC","quoteCoin":"USDT","priceUnit":0.1,"contractSize":0.0001},
			{"symbol":"PEPE_USDT","baseCoin":"PEPE","quoteCoin":"USDT","priceUnit":0.0000001,"contractSize":1000}]}`)
	})
	return httptest.NewServer(mux)
}

func TestFetchBarsDecodesColumns(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()
	c := NewRestClient(zerolog.Nop(), WithBaseURL(srv.URL))

	bars, err := c.FetchBars(context.Background(), "BTC_USDT", "1m", 3)
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	if bars[2].Close != 1.3 || bars[0].Volume != 100 {
		t.Fatalf("unexpected bar values: %+v", bars)
	}
	if !bars[0].Ts.Before(bars[2].Ts) {
		t.Fatalf("bars must be oldest first")
	}
}

func TestFetchBarsRejectsUnknownTimeframe(t *testing.T) {
	c := NewRestClient(zerolog.Nop())
	if _, err := c.FetchBars(context.Background(), "BTC_USDT", "7m", 10); err == nil {
		t.Fatalf("expected error for unsupported timeframe")
	}
}

func TestFetchTicker(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()
	c := NewRestClient(zerolog.Nop(), WithBaseURL(srv.URL))

	tk, err := c.FetchTicker(context.Background(), "BTC_USDT")
	if err != nil {
		t.Fatalf("FetchTicker: %v", err)
	}
	if tk.Last != 50000.5 || tk.Bid != 50000 || tk.Ask != 50001 {
		t.Fatalf("unexpected ticker: %+v", tk)
	}
}

func TestFetchTickersBatchAndMarkets(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()
	c := NewRestClient(zerolog.Nop(), WithBaseURL(srv.URL))

	tks, err := c.FetchTickers(context.Background())
	if err != nil {
		t.Fatalf("FetchTickers: %v", err)
	}
	if len(tks) != 2 || tks["ETH_USDT"].Last != 3000.25 {
		t.Fatalf("unexpected ticker map: %+v", tks)
	}

	markets, err := c.ListMarkets(context.Background())
	if err != nil {
		t.Fatalf("ListMarkets: %v", err)
	}
	if markets["PEPE_USDT"].TickSize != 0.0000001 {
		t.Fatalf("unexpected tick size: %+v", markets["PEPE_USDT"])
	}
	if c.TickSize("BTC_USDT") != 0.1 {
		t.Fatalf("tick size cache not populated")
	}
	if got := c.RoundToTick("BTC_USDT", 50000.44); math.Abs(got-50000.4) > 1e-9 {
		t.Fatalf("RoundToTick = %v", got)
	}
}

func TestRoundToTickZeroTick(t *testing.T) {
	if got := RoundToTick(1.2345, 0); got != 1.2345 {
		t.Fatalf("zero tick must leave price unchanged, got %v", got)
	}
}
