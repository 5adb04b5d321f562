package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/api"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/config"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/engine"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/exchange"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/journal"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/metrics"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/notify"
	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/util"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rest := exchange.NewRestClient(log,
		exchange.WithBaseURL(cfg.Exchange.BaseURL),
		exchange.WithTimeout(time.Duration(cfg.Exchange.RequestTimeout)*time.Millisecond),
		exchange.WithRateLimit(cfg.Exchange.RatePerSecond, cfg.Exchange.RateBurst),
	)
	fetch := exchange.NewFetcher(rest, log, exchange.FetcherConfig{
		MaxConcurrent: cfg.Exchange.MaxConcurrent,
		Retries:       cfg.Exchange.RetryCount,
		RetryBase:     time.Duration(cfg.Exchange.RetryBaseMs) * time.Millisecond,
		CallTimeout:   time.Duration(cfg.Exchange.RequestTimeout) * time.Millisecond,
		FallbackLimit: cfg.Exchange.FallbackLimit,
	})

	// the reference asset must resolve before anything trades against it
	markets, err := rest.ListMarkets(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("market listing failed")
	}
	if ref := cfg.Score.ReferenceSymbol; ref != "" {
		if _, ok := markets[ref]; !ok {
			log.Fatal().Str("symbol", ref).Msg("reference symbol not listed on the venue")
		}
	}
	log.Info().Int("markets", len(markets)).Msg("venue connected")

	var stream *exchange.TickerStream
	if cfg.Exchange.WSBaseURL != "" {
		stream = exchange.NewTickerStream(cfg.Exchange.WSBaseURL, log)
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("ticker stream stopped")
			}
		}()
	}

	var jrnl journal.Journal = journal.Nop{}
	if cfg.Journal.Path != "" {
		sqlJournal, err := journal.NewSQLite(cfg.Journal.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Journal.Path).Msg("open journal")
		}
		defer sqlJournal.Close()
		jrnl = sqlJournal
	}

	var notifier notify.Notifier = notify.Nop{}
	var telegram *notify.Telegram
	if cfg.Telegram.Enabled {
		token := os.Getenv("TELEGRAM_BOT_TOKEN")
		if token == "" {
			log.Fatal().Msg("telegram enabled but TELEGRAM_BOT_TOKEN is not set")
		}
		telegram = notify.NewTelegram(log, token, cfg.Telegram.ChatIDs, cfg.Telegram.PollSec)
		notifier = telegram
	}

	eng := engine.New(log, cfg, rest, fetch, stream, jrnl, notifier)
	if err := eng.LoadState(); err != nil {
		log.Error().Err(err).Msg("state restore failed, starting fresh")
	}

	if telegram != nil {
		telegram.StartPolling(ctx, eng)
	}
	if cfg.App.ControlAddr != "" {
		server := api.NewServer(log, eng)
		go func() {
			if err := server.Start(cfg.App.ControlAddr); err != nil {
				log.Error().Err(err).Msg("control api stopped")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = server.Stop(shutdownCtx)
		}()
	}

	log.Info().Str("env", cfg.App.Env).Msg("scanner started")
	eng.Loop(ctx)
	log.Info().Msg("shut down cleanly")
}
