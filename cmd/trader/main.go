package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matthewp131/algotrader/config"
	"github.com/matthewp131/algotrader/internal/adapters/alpaca"
	"github.com/matthewp131/algotrader/internal/adapters/notify"
	"github.com/matthewp131/algotrader/internal/adapters/sim"
	"github.com/matthewp131/algotrader/internal/adapters/storage"
	"github.com/matthewp131/algotrader/internal/application/manager"
	"github.com/matthewp131/algotrader/internal/ledger"
	"github.com/matthewp131/algotrader/internal/ports"
	"github.com/shopspring/decimal"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	paper := flag.Bool("paper", false, "use the in-memory simulated broker")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("algotrader starting",
		"config", *configPath,
		"paper", *paper,
		"users", len(cfg.Users),
		"strategies", len(cfg.Strategies),
	)

	var dialer ports.BrokerDialer
	if *paper {
		dialer = sim.NewDialer(sim.Options{
			FeedInterval: 2 * time.Second,
			Shortable:    true,
			AutoFill:     true,
		})
	} else {
		dialer = &alpaca.Dialer{
			TradingBase:    cfg.Broker.TradingBase,
			DataBase:       cfg.Broker.DataBase,
			TradeStreamURL: cfg.Broker.TradeStreamURL,
			DataStreamURL:  cfg.Broker.DataStreamURL,
		}
	}

	journal, err := storage.NewSQLiteJournal(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open order journal", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer journal.Close()

	led := ledger.New()
	for _, u := range cfg.Users {
		led.AddUser(u.Name, u.Key(), u.Secret())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mgr := manager.New(led, dialer, journal, manager.Config{
		Scale:       decimal.NewFromFloat(cfg.Trading.Scale),
		CloseBuffer: cfg.CloseBuffer(),
	}, cancel)

	for _, s := range cfg.Strategies {
		err := mgr.Start(ctx, s.User, s.Symbol, decimal.NewFromFloat(s.Allocation))
		if err != nil {
			slog.Error("strategy start rejected",
				"user", s.User, "symbol", s.Symbol, "err", err)
		}
	}

	notifier := notify.NewConsole()
	go statusLoop(ctx, mgr, notifier, cfg.StatusInterval())

	<-ctx.Done()

	// Operational contract: every open position must be flattened and every
	// allocation released before the process exits.
	slog.Info("shutdown requested, stopping all strategies")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer stopCancel()
	if err := mgr.StopAll(stopCtx); err != nil {
		slog.Error("shutdown incomplete", "err", err)
		os.Exit(1)
	}

	slog.Info("algotrader stopped cleanly")
}

// statusLoop prints the status table periodically until shutdown.
func statusLoop(ctx context.Context, mgr *manager.Manager, notifier ports.Notifier, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := notifier.Notify(ctx, mgr.Report()); err != nil {
				slog.Warn("status notify failed", "err", err)
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
