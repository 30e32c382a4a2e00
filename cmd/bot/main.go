package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/jenbur242/pocket-option/internal/broker"
	"github.com/jenbur242/pocket-option/internal/config"
	"github.com/jenbur242/pocket-option/internal/dashboard"
	"github.com/jenbur242/pocket-option/internal/executor"
	"github.com/jenbur242/pocket-option/internal/martingale"
	"github.com/jenbur242/pocket-option/internal/models"
	"github.com/jenbur242/pocket-option/internal/session"
	"github.com/jenbur242/pocket-option/internal/signals"
	"github.com/jenbur242/pocket-option/internal/storage"
)

type Bot struct {
	config    *config.Config
	broker    broker.Broker
	storage   storage.Interface
	session   *session.Session
	dashboard *dashboard.Server
	logger    *log.Logger
	stop      chan struct{}
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[BOT] ", log.LstdFlags|log.Lshortfile)

	logger.Printf("Starting PocketOption bot in %s mode, variant %s", cfg.Environment.Mode, cfg.Session.Variant)
	if cfg.IsPaperTrading() {
		logger.Println("PAPER TRADING MODE - No real money at risk")
	} else {
		logger.Println("LIVE TRADING MODE - Real money at risk!")
		logger.Println("Waiting 10 seconds to confirm...")
		time.Sleep(10 * time.Second)
	}

	bot, err := newBot(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize bot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping bot...")
		close(bot.stop)
		cancel()
	}()

	if err := bot.Run(ctx); err != nil {
		logger.Fatalf("Bot error: %v", err)
	}

	logger.Println("Bot stopped successfully")
}

func newBot(cfg *config.Config, logger *log.Logger) (*Bot, error) {
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening trade storage: %w", err)
	}

	var brk broker.Broker
	mode := models.ModeLive
	if cfg.IsPaperTrading() {
		mode = models.ModePaper
		brk = broker.NewSimulatedBroker(time.Now().UnixNano())
	} else {
		url := cfg.Broker.URL
		if url == "" {
			url = broker.DefaultURL
		}
		brk = broker.NewPocketOptionClient(url, cfg.Broker.SSID, cfg.Broker.Demo, logger)
	}
	brk = broker.NewCircuitBreakerBroker(brk)

	variant, ok := martingale.Lookup(cfg.Session.Variant)
	if !ok {
		return nil, fmt.Errorf("unknown martingale variant %q", cfg.Session.Variant)
	}

	reader := signals.NewReader(signals.Options{
		File:    cfg.Signals.File,
		Dir:     cfg.Signals.Dir,
		Offset:  time.Duration(cfg.OffsetSeconds()) * time.Second,
		MaxLag:  cfg.MaxLag(),
		MaxLead: cfg.MaxLead(),
		Logger:  logger,
	})

	exec := executor.New(brk, mode, logger)

	sess := session.New(session.Config{
		Variant:      variant,
		BaseAmount:   cfg.BaseAmount(),
		Multiplier:   cfg.Multiplier(),
		Scope:        cfg.Session.Scope,
		StopLoss:     decimalFromFloat(cfg.Session.StopLoss),
		TakeProfit:   decimalFromFloat(cfg.Session.TakeProfit),
		MinStake:     cfg.MinStake(),
		MaxStake:     cfg.MaxStake(),
		MaxParallel:  cfg.Session.MaxParallelSymbols,
		PollInterval: cfg.PollInterval(),
	}, reader, exec, store, logger)
	if !cfg.IsPaperTrading() {
		// Signals for assets the broker does not list still trade, on paper.
		paperBroker := broker.NewSimulatedBroker(time.Now().UnixNano())
		sess.SetPaperExecutor(executor.New(paperBroker, models.ModePaper, logger))
	}

	bot := &Bot{
		config:  cfg,
		broker:  brk,
		storage: store,
		session: sess,
		logger:  logger,
		stop:    make(chan struct{}),
	}

	if cfg.Dashboard.Enabled {
		dashLogger := logrus.New()
		if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
			dashLogger.SetLevel(level)
		}
		bot.dashboard = dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, store, sess, brk, dashLogger)
	}

	return bot, nil
}

func (b *Bot) Run(ctx context.Context) error {
	b.logger.Println("Connecting to broker...")
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := b.broker.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer func() {
		if err := b.broker.Disconnect(); err != nil {
			b.logger.Printf("Broker disconnect: %v", err)
		}
	}()

	balance, err := b.broker.Balance(ctx)
	if err != nil {
		return fmt.Errorf("reading account balance: %w", err)
	}
	b.logger.Printf("Connected to broker. Account balance: $%s", balance.StringFixed(2))

	reconciler := NewReconciler(b.broker, b.storage, b.logger, 24*time.Hour)
	if resolved := reconciler.ReconcileTrades(ctx); resolved > 0 {
		b.logger.Printf("Reconciled %d unresolved trades from previous run", resolved)
	}

	if b.dashboard != nil {
		go func() {
			if err := b.dashboard.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				b.logger.Printf("Dashboard server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := b.dashboard.Shutdown(shutdownCtx); err != nil {
				b.logger.Printf("Dashboard shutdown: %v", err)
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-b.stop
		cancel()
	}()

	err = b.session.Run(runCtx)
	switch {
	case errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, session.ErrStopLoss), errors.Is(err, session.ErrTakeProfit):
		b.logger.Printf("Session ended: %v", err)
		return nil
	default:
		return err
	}
}
