package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestStreamLastFreshness(t *testing.T) {
	s := NewTickerStream("", zerolog.Nop())

	if _, ok := s.Last("BTC_USDT"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	s.put("BTC_USDT", 50000, time.Now())
	price, ok := s.Last("BTC_USDT")
	if !ok || price != 50000 {
		t.Fatalf("expected fresh cached price, got %v %v", price, ok)
	}

	s.put("OLD_USDT", 1.23, time.Now().Add(-time.Minute))
	if _, ok := s.Last("OLD_USDT"); ok {
		t.Fatalf("stale prices must not be served")
	}
}

func TestStreamJSONPongKeepsConnectionAlive(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil { // the subscribe request
			return
		}
		// a JSON pong past half the read window, then a push past the full
		// window: without a per-message deadline refresh the read dies first
		time.Sleep(60 * time.Millisecond)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"pong"}`)); err != nil {
			return
		}
		time.Sleep(60 * time.Millisecond)
		payload := `{"channel":"push.tickers","data":[{"symbol":"BTC_USDT","lastPrice":50000}],"ts":0}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	s := NewTickerStream("ws"+strings.TrimPrefix(srv.URL, "http"), zerolog.Nop())
	s.readTimeout = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go s.consume(ctx)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if px, ok := s.Last("BTC_USDT"); ok {
			if px != 50000 {
				t.Fatalf("cached price = %v, want 50000", px)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("ticker push never cached; the connection died before the keepalive ack")
}
