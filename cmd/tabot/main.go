package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/bgorhoball/crypto-ta-bot/config"
	"github.com/bgorhoball/crypto-ta-bot/internal/alert"
	"github.com/bgorhoball/crypto-ta-bot/internal/indicator"
	"github.com/bgorhoball/crypto-ta-bot/internal/logger"
	"github.com/bgorhoball/crypto-ta-bot/internal/marketdata/binance"
	"github.com/bgorhoball/crypto-ta-bot/internal/metrics"
	"github.com/bgorhoball/crypto-ta-bot/internal/model"
	"github.com/bgorhoball/crypto-ta-bot/internal/notification"
	"github.com/bgorhoball/crypto-ta-bot/internal/scheduler"
	redisstore "github.com/bgorhoball/crypto-ta-bot/internal/store/redis"
	sqlitestore "github.com/bgorhoball/crypto-ta-bot/internal/store/sqlite"
	"github.com/bgorhoball/crypto-ta-bot/internal/transition"
	"github.com/bgorhoball/crypto-ta-bot/internal/window"
)

func main() {
	cfg := config.Load()
	log := logger.Init("tabot", cfg.LogLevel)

	symbols := cfg.ParseSymbols()
	log.Info().Strs("symbols", symbols).Str("interval", cfg.Interval).Dur("poll", cfg.PollPeriod).Msg("starting")

	indCfg := indicator.Config{
		RSIPeriod:  cfg.RSIPeriod,
		SMAFast:    cfg.SMAFast,
		SMASlow:    cfg.SMASlow,
		EMAPeriod:  cfg.EMAPeriod,
		SMATrend:   cfg.SMATrend,
		MACDFast:   cfg.MACDFast,
		MACDSlow:   cfg.MACDSlow,
		MACDSignal: cfg.MACDSignal,
	}

	prom := metrics.New()
	health := metrics.NewHealthStatus(symbols)

	deps := scheduler.Deps{
		Windows:   window.NewStore(indCfg.MinWindow()),
		Engine:    indicator.NewEngine(indCfg),
		Detector:  transition.NewDetector(),
		Evaluator: alert.NewEvaluator(alert.Config{
			RSIHigh:     cfg.RSIHigh,
			RSILow:      cfg.RSILow,
			Cooldown:    cfg.Cooldown,
			PriceLevels: cfg.ParsePriceLevels(),
		}),
		Fetcher:  binance.NewClient(cfg.BinanceBaseURL, cfg.FetchTimeout),
		Notifier: buildNotifier(cfg, log),
		Prom:     prom,
		Health:   health,
		Log:      logger.Component(log, "scheduler"),
	}

	if cfg.RedisAddr != "" {
		store, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}, logger.Component(log, "redis"))
		if err != nil {
			log.Fatal().Err(err).Msg("redis init failed")
		}
		defer store.Close()
		deps.State = store
	} else {
		log.Info().Msg("no REDIS_ADDR, state is session-only")
	}

	if cfg.SQLitePath != "" {
		hist, err := sqlitestore.New(cfg.SQLitePath, logger.Component(log, "sqlite"))
		if err != nil {
			log.Fatal().Err(err).Msg("sqlite init failed")
		}
		defer hist.Close()
		deps.Hist = hist
	}

	sched, err := scheduler.New(scheduler.Config{
		Symbols:        symbols,
		Interval:       cfg.Interval,
		PollPeriod:     cfg.PollPeriod,
		FetchTimeout:   cfg.FetchTimeout,
		FetchRetries:   cfg.FetchRetries,
		RetryBackoff:   cfg.RetryBackoff,
		RefreshCount:   cfg.RefreshCount,
		LevelsLookback: cfg.LevelsLookback,
	}, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler init failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	if cfg.StreamEnabled {
		stream := binance.NewStream(cfg.BinanceStreamURL, symbols, cfg.Interval, logger.Component(log, "stream"))
		stream.OnReconnect = prom.StreamReconnects.Inc
		streamCh := make(chan model.Candle, 1024)
		go stream.Run(ctx, streamCh)
		sched.SetStream(streamCh)
	}

	srv := metrics.NewServer(cfg.MetricsAddr, health, logger.Component(log, "metrics"))
	srv.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Stop(shutdownCtx)
	}()

	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("scheduler stopped")
	}
	log.Info().Msg("stopped")
}

// buildNotifier picks the configured notification backend; Telegram wins,
// then webhook, then the log.
func buildNotifier(cfg *config.Config, log zerolog.Logger) notification.Notifier {
	nlog := logger.Component(log, "notify")
	switch {
	case cfg.TelegramBotToken != "" && cfg.TelegramChatID != "":
		return notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, nlog)
	case cfg.WebhookURL != "":
		return notification.NewWebhookNotifier(cfg.WebhookURL, nlog)
	default:
		return notification.NewLogNotifier(nlog)
	}
}
