// Package notify delivers signal alerts and takes operator commands over
// Telegram. Delivery is fire-and-forget: a failed send is logged and dropped,
// never retried into the trading path.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier is the alert sink used by the engine.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Nop drops everything; used when Telegram is disabled.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}

// Controller is the command surface the poller drives. Each method returns
// the reply text for the chat.
type Controller interface {
	Run() string
	Stop() string
	Status() string
	ClosePositions(symbol string) string
}

// Telegram broadcasts HTML messages to a set of chats and long-polls the bot
// API for operator commands.
type Telegram struct {
	log     zerolog.Logger
	client  *http.Client
	baseURL string
	token   string
	chatIDs []int64
	pollSec int

	mu     sync.Mutex
	offset int64
}

// Option mutates construction defaults.
type Option func(*Telegram)

// WithBaseURL overrides the bot API endpoint; used by tests.
func WithBaseURL(base string) Option {
	return func(t *Telegram) { t.baseURL = strings.TrimSuffix(base, "/") }
}

func NewTelegram(log zerolog.Logger, token string, chatIDs []int64, pollSec int, opts ...Option) *Telegram {
	t := &Telegram{
		log:     log.With().Str("component", "telegram").Logger(),
		client:  &http.Client{Timeout: 35 * time.Second},
		baseURL: defaultAPIBase,
		token:   token,
		chatIDs: append([]int64(nil), chatIDs...),
		pollSec: pollSec,
	}
	if t.pollSec <= 0 {
		t.pollSec = 25
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Notify sends the text to every configured chat. Failures are logged only.
func (t *Telegram) Notify(ctx context.Context, text string) {
	for _, chatID := range t.chatIDs {
		if err := t.sendMessage(ctx, chatID, text); err != nil {
			t.log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
		}
	}
}

func (t *Telegram) sendMessage(ctx context.Context, chatID int64, text string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("text", text)
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var payload struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}
	if !payload.OK {
		return fmt.Errorf("telegram rejected message")
	}
	return nil
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// StartPolling launches the command loop in a goroutine.
func (t *Telegram) StartPolling(ctx context.Context, ctrl Controller) {
	if ctrl == nil {
		return
	}
	go t.pollLoop(ctx, ctrl)
}

func (t *Telegram) pollLoop(ctx context.Context, ctrl Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := t.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warn().Err(err).Msg("telegram poll failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			t.handleUpdate(ctx, ctrl, u)
		}
	}
}

func (t *Telegram) getUpdates(ctx context.Context) ([]update, error) {
	t.mu.Lock()
	offset := t.offset
	t.mu.Unlock()

	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d&offset=%d", t.baseURL, t.token, t.pollSec, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var payload struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if !payload.OK {
		return nil, fmt.Errorf("telegram rejected getUpdates")
	}
	if n := len(payload.Result); n > 0 {
		t.mu.Lock()
		t.offset = payload.Result[n-1].UpdateID + 1
		t.mu.Unlock()
	}
	return payload.Result, nil
}

func (t *Telegram) handleUpdate(ctx context.Context, ctrl Controller, u update) {
	if u.Message == nil {
		return
	}
	if !t.allowed(u.Message.Chat.ID) {
		t.log.Warn().Int64("chat_id", u.Message.Chat.ID).Msg("command from unknown chat ignored")
		return
	}
	reply := Dispatch(ctrl, u.Message.Text)
	if reply == "" {
		return
	}
	if err := t.sendMessage(ctx, u.Message.Chat.ID, reply); err != nil {
		t.log.Warn().Err(err).Msg("telegram reply failed")
	}
}

func (t *Telegram) allowed(chatID int64) bool {
	for _, id := range t.chatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

// Dispatch parses an operator command and invokes the controller. Unknown
// input yields an empty reply.
func Dispatch(ctrl Controller, text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return ""
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/run":
		return ctrl.Run()
	case "/stop":
		return ctrl.Stop()
	case "/status":
		return ctrl.Status()
	case "/close":
		target := "all"
		if len(fields) > 1 {
			target = strings.ToUpper(fields[1])
		}
		return ctrl.ClosePositions(target)
	default:
		return ""
	}
}
