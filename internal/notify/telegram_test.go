package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeController struct {
	running bool
	closed  []string
}

func (f *fakeController) Run() string  { f.running = true; return "scanning started" }
func (f *fakeController) Stop() string { f.running = false; return "scanning stopped" }
func (f *fakeController) Status() string {
	if f.running {
		return "running"
	}
	return "stopped"
}
func (f *fakeController) ClosePositions(symbol string) string {
	f.closed = append(f.closed, symbol)
	return "closed " + symbol
}

func TestNotifySendsToAllChats(t *testing.T) {
	var got []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		got = append(got, r.PostForm)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(zerolog.Nop(), "token", []int64{11, 22}, 1, WithBaseURL(srv.URL))
	tg.Notify(context.Background(), "hello <world>")

	if len(got) != 2 {
		t.Fatalf("sent %d messages, want 2", len(got))
	}
	if got[0].Get("chat_id") != "11" || got[1].Get("chat_id") != "22" {
		t.Fatalf("chat ids: %v %v", got[0].Get("chat_id"), got[1].Get("chat_id"))
	}
	if got[0].Get("parse_mode") != "HTML" {
		t.Fatalf("parse_mode = %s", got[0].Get("parse_mode"))
	}
}

func TestDispatchCommands(t *testing.T) {
	ctrl := &fakeController{}

	if reply := Dispatch(ctrl, "/run"); reply != "scanning started" || !ctrl.running {
		t.Fatalf("run: %q running=%v", reply, ctrl.running)
	}
	if reply := Dispatch(ctrl, "/status"); reply != "running" {
		t.Fatalf("status: %q", reply)
	}
	if reply := Dispatch(ctrl, "/stop"); reply != "scanning stopped" || ctrl.running {
		t.Fatalf("stop: %q", reply)
	}
	if reply := Dispatch(ctrl, "/close btc_usdt"); reply != "closed BTC_USDT" {
		t.Fatalf("close: %q", reply)
	}
	if reply := Dispatch(ctrl, "/close"); reply != "closed all" {
		t.Fatalf("close all: %q", reply)
	}
	if reply := Dispatch(ctrl, "/run@my_bot"); reply != "scanning started" {
		t.Fatalf("suffixed command: %q", reply)
	}
	if reply := Dispatch(ctrl, "what is this"); reply != "" {
		t.Fatalf("unknown text must be silent, got %q", reply)
	}
}

func TestPollDispatchesAndAdvancesOffset(t *testing.T) {
	type result struct {
		UpdateID int64 `json:"update_id"`
		Message  struct {
			Text string `json:"text"`
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	}
	var offsets []string
	first := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/sendMessage") {
			w.Write([]byte(`{"ok":true}`))
			return
		}
		offsets = append(offsets, r.URL.Query().Get("offset"))
		if !first {
			w.Write([]byte(`{"ok":true,"result":[]}`))
			return
		}
		first = false
		var u result
		u.UpdateID = 41
		u.Message.Text = "/run"
		u.Message.Chat.ID = 11
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": []result{u}})
	}))
	defer srv.Close()

	tg := NewTelegram(zerolog.Nop(), "token", []int64{11}, 1, WithBaseURL(srv.URL))
	ctrl := &fakeController{}

	ctx := context.Background()
	updates, err := tg.getUpdates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range updates {
		tg.handleUpdate(ctx, ctrl, u)
	}
	if !ctrl.running {
		t.Fatal("command not dispatched")
	}
	if _, err := tg.getUpdates(ctx); err != nil {
		t.Fatal(err)
	}
	if len(offsets) != 2 || offsets[0] != "0" || offsets[1] != "42" {
		t.Fatalf("offsets = %v, want [0 42]", offsets)
	}
}

func TestUnknownChatIgnored(t *testing.T) {
	sent := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/sendMessage") {
			sent++
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(zerolog.Nop(), "token", []int64{11}, 1, WithBaseURL(srv.URL))
	ctrl := &fakeController{}
	var u update
	u.Message = &struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	}{}
	u.Message.Text = "/run"
	u.Message.Chat.ID = 99
	tg.handleUpdate(context.Background(), ctrl, u)

	if ctrl.running || sent != 0 {
		t.Fatalf("unknown chat executed a command (running=%v sent=%d)", ctrl.running, sent)
	}
}

func TestAlertsFormat(t *testing.T) {
	open := OpenAlert("BTC_USDT", "LONG", 65000, 64870, 65260, 2.1, 1.9)
	if !strings.Contains(open, "BTC_USDT LONG") || !strings.Contains(open, "65000.0000") {
		t.Fatalf("open alert: %q", open)
	}
	cl := CloseAlert("A<B", "SHORT", "STOP_LOSS", 0.004512, -4.2, 90*time.Second)
	if !strings.Contains(cl, "🛑") || !strings.Contains(cl, "A&lt;B") {
		t.Fatalf("close alert: %q", cl)
	}
	if !strings.Contains(cl, "0.004512") {
		t.Fatalf("close alert price: %q", cl)
	}
}
