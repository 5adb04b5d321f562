// Package api exposes the HTTP control surface: status, positions, and the
// same start/stop/close commands the chat interface offers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/position"
)

// Control is the engine surface the server drives.
type Control interface {
	Run() string
	Stop() string
	Enabled() bool
	Threshold() float64
	Equity() (equity, reserved float64)
	Positions() []position.Position
	ClosePositions(symbol string) string
}

// Server is the HTTP control API.
type Server struct {
	log        zerolog.Logger
	ctrl       Control
	router     *mux.Router
	httpServer *http.Server
}

func NewServer(log zerolog.Logger, ctrl Control) *Server {
	s := &Server{
		log:  log.With().Str("component", "api").Logger(),
		ctrl: ctrl,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods("GET")
	v1.HandleFunc("/status", s.handleStatus).Methods("GET")
	v1.HandleFunc("/positions", s.handlePositions).Methods("GET")
	v1.HandleFunc("/scan/start", s.handleStart).Methods("POST")
	v1.HandleFunc("/scan/stop", s.handleStop).Methods("POST")
	v1.HandleFunc("/positions/close", s.handleClose).Methods("POST")
}

// Handler exposes the router; used by tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("control api listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	equity, reserved := s.ctrl.Equity()
	open := 0
	for _, p := range s.ctrl.Positions() {
		if p.Status == position.Active {
			open++
		}
	}
	writeJSON(w, map[string]any{
		"enabled":        s.ctrl.Enabled(),
		"threshold":      s.ctrl.Threshold(),
		"equity":         equity,
		"reserved":       reserved,
		"open_positions": open,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.ctrl.Positions()
	if r.URL.Query().Get("open") == "true" {
		filtered := positions[:0]
		for _, p := range positions {
			if p.Status == position.Active {
				filtered = append(filtered, p)
			}
		}
		positions = filtered
	}
	writeJSON(w, map[string]any{
		"positions": positions,
		"count":     len(positions),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"result": s.ctrl.Run()})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"result": s.ctrl.Stop()})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	target := strings.TrimSpace(req.Symbol)
	if target == "" {
		target = "all"
	}
	writeJSON(w, map[string]any{"result": s.ctrl.ClosePositions(target)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error().Interface("panic", err).Str("path", r.URL.Path).Msg("handler panicked")
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
