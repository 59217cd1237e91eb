package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhatia/banknifty-sandwich/internal/broker"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/config"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/dashboard"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/expiry"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/journal"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/marketdata"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/metrics"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/models"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/notify"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/strategy"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Secrets land in the environment before config expansion.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	logger.WithField("mode", cfg.Environment.Mode).Info("starting banknifty sandwich bot")
	if !cfg.IsPaperTrading() {
		logger.Warn("LIVE TRADING MODE - real money at risk, waiting 10s to confirm")
		time.Sleep(10 * time.Second)
	}

	var venue broker.Broker
	switch cfg.Broker.Provider {
	case "zerodha":
		venue = broker.NewKiteBroker(broker.KiteConfig{
			APIKey:      cfg.Broker.APIKey,
			AccessToken: cfg.Broker.AccessToken,
			Exchange:    cfg.Broker.Exchange,
		}, logger)
	default:
		venue = broker.NewMockBroker(45000, logger)
	}
	venue = broker.NewCircuitBreakerBroker(venue, logger)

	if err := venue.Connect(); err != nil {
		logger.Fatalf("Broker connection failed: %v", err)
	}
	if available, used, err := venue.GetMargins(); err != nil {
		logger.WithError(err).Warn("margin check failed")
	} else {
		logger.WithFields(logrus.Fields{
			"available": available,
			"used":      used,
		}).Info("broker connected")
	}

	provider := marketdata.NewBrokerProvider(venue, cfg.Strategy.Underlying, logger,
		marketdata.WithSpotSymbol(cfg.Strategy.SpotSymbol))

	var notifier notify.Notifier
	if cfg.Notifications.TelegramEnabled {
		tg, err := notify.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID, logger)
		if err != nil {
			logger.WithError(err).Warn("telegram unavailable, falling back to log notifications")
			notifier = notify.NewLogNotifier(logger)
		} else {
			notifier = tg
		}
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	jnl, err := journal.Open(cfg.Journal.Path, logger)
	if err != nil {
		logger.Fatalf("Journal open failed: %v", err)
	}
	defer jnl.Close()

	sandwich := strategy.New(strategy.Config{
		Underlying:      cfg.Strategy.Underlying,
		Capital:         cfg.Strategy.Capital,
		Lots:            cfg.Strategy.Lots,
		LotSize:         cfg.Strategy.LotSize,
		ProfitTargetPct: cfg.Strategy.ProfitTargetPct,
		EntryHour:       entryHour(cfg),
		EntryMinute:     entryMinute(cfg),
		EntryWindowMin:  cfg.Schedule.EntryWindowMin,
	}, venue, provider, expiry.NewCalendar(), logger, notifier, jnl)

	registry := prometheus.NewRegistry()
	collectors := metrics.New(registry)
	store := &dashboard.Store{}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Dashboard.Enabled {
		server := dashboard.NewServer(dashboard.Config{
			ListenAddr: cfg.Dashboard.ListenAddr,
			AuthToken:  cfg.Dashboard.AuthToken,
		}, store, registry, logger)
		g.Go(server.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return runLoop(ctx, cfg, sandwich, collectors, store, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Bot error: %v", err)
	}
	logger.Info("bot stopped")
}

// runLoop drives Enter/Monitor once per tick inside market hours and
// publishes a snapshot after each cycle.
func runLoop(ctx context.Context, cfg *config.Config, sandwich *strategy.Sandwich,
	collectors *metrics.Metrics, store *dashboard.Store, logger *logrus.Logger) error {
	ticker := time.NewTicker(cfg.CheckInterval())
	defer ticker.Stop()

	cycle := func(now time.Time) {
		if !cfg.IsWithinTradingHours(now) {
			return
		}
		before := sandwich.State()
		switch before {
		case models.StateIdle:
			if _, err := sandwich.Enter(now, strategy.EntryOptions{}); err != nil {
				logger.WithError(err).Error("entry attempt failed")
			}
		case models.StateClosed:
			// Final state, nothing left to drive.
		default:
			sandwich.Monitor(now)
		}
		if after := sandwich.State(); after != before && after != models.StateClosed && before != models.StateIdle {
			collectors.RecordAdjustment(string(after))
		}
		snap := sandwich.Metrics(now)
		collectors.Observe(snap.State, snap.TotalPnL, snap.PnLPctCapital, snap.OpenLegs, snap.ClosedLegs)
		store.Publish(snap, sandwich.Legs())
	}

	cycle(time.Now().In(cfg.Location()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case tick := <-ticker.C:
			cycle(tick.In(cfg.Location()))
		}
	}
}

func entryHour(cfg *config.Config) int {
	h, _ := cfg.EntryTimeOfDay()
	return h
}

func entryMinute(cfg *config.Config) int {
	_, m := cfg.EntryTimeOfDay()
	return m
}
