// Command marketmaker runs the paired YES/NO market maker described in
// this repository's design: scan, fetch, manage, evaluate, place, on a
// fixed cycle, against either a paper ledger or the live exchange.
package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dcaraballo/kalshimm/config"
	"github.com/dcaraballo/kalshimm/internal/adapters/exchange"
	"github.com/dcaraballo/kalshimm/internal/adapters/notify"
	"github.com/dcaraballo/kalshimm/internal/adapters/storage"
	"github.com/dcaraballo/kalshimm/internal/application/bookfetcher"
	"github.com/dcaraballo/kalshimm/internal/application/engine"
	"github.com/dcaraballo/kalshimm/internal/application/executor"
	"github.com/dcaraballo/kalshimm/internal/application/position"
	"github.com/dcaraballo/kalshimm/internal/application/scanner"
	"github.com/dcaraballo/kalshimm/internal/domain"
	"github.com/dcaraballo/kalshimm/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one cycle and exit")
	paper := flag.Bool("paper", false, "force paper trading regardless of config")
	report := flag.Bool("report", false, "print the PnL/status report and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *paper {
		cfg.Engine.PaperTrade = true
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open ledger", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	if *report {
		runReport(context.Background(), store)
		return
	}

	var exch ports.Exchange
	if !cfg.Engine.PaperTrade {
		keyBytes, err := os.ReadFile(cfg.API.PrivateKeyPath)
		if err != nil {
			slog.Error("failed to read private key", "err", err, "path", cfg.API.PrivateKeyPath)
			os.Exit(1)
		}
		signer, err := exchange.NewSigner(cfg.API.AccessKey, keyBytes)
		if err != nil {
			slog.Error("failed to build signer", "err", err)
			os.Exit(1)
		}
		exch = exchange.NewClient(cfg.API.BaseURL, signer, cfg.API.RequestsPerSecond)
	}

	exec := executor.New(store, exch)
	scan := scanner.New(exch, scanner.Config{
		Assets:                  cfg.Scanner.Assets,
		ResolutionBufferSeconds: cfg.Scanner.ResolutionBufferSeconds,
		SeriesTicker:            cfg.Scanner.SeriesTicker,
		Limit:                   cfg.Scanner.Limit,
	})
	fetcher := bookfetcher.New(exch, cfg.Scanner.BookFetchWorkers)

	openAllocations, err := loadOpenAllocations(context.Background(), store)
	if err != nil {
		slog.Error("failed to load open allocations", "err", err)
		os.Exit(1)
	}
	capital := domain.Restore(cfg.Engine.MaxTotalExposure, openAllocations)
	halt := domain.NewHaltState(cfg.Engine.MaxOneSidedFillsBeforeHalt)

	posManager := position.New(store, exec, capital, halt, rand.New(rand.NewSource(time.Now().UnixNano())), position.Config{
		PairTimeoutSeconds:    cfg.Engine.PairTimeoutSeconds,
		CancelDeadlineSeconds: cfg.Engine.CancelDeadlineSeconds,
		PaperTrade:            cfg.Engine.PaperTrade,
	})

	eng := engine.New(scan, fetcher, posManager, exec, capital, store, engine.Config{
		ScanInterval:   cfg.ScanInterval(),
		TradingEnabled: cfg.Engine.TradingEnabled,
		Strategy: domain.StrategyConfig{
			MinSpreadThreshold:   cfg.Engine.MinSpreadThreshold,
			OrderSizeDefault:     cfg.Engine.OrderSizeDefault,
			MaxExposurePerMarket: cfg.Engine.MaxExposurePerMarket,
		},
	}, uuid.NewString)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("kalshimm starting",
		"config", *configPath,
		"paper_trade", cfg.Engine.PaperTrade,
		"interval", cfg.ScanInterval(),
		"assets", cfg.Scanner.Assets,
	)

	if *once {
		if err := eng.RunOnce(ctx); err != nil {
			slog.Error("cycle failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("kalshimm stopped cleanly")
}

func loadOpenAllocations(ctx context.Context, store *storage.SQLiteStorage) (map[string]float64, error) {
	pairs, err := store.OpenPairViews(ctx)
	if err != nil {
		return nil, err
	}
	allocations := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		if p.YesLeg == nil || p.NoLeg == nil {
			continue
		}
		allocations[p.PairID] = float64(p.YesLeg.PriceCents+p.NoLeg.PriceCents) * float64(p.YesLeg.Size) / 100
	}
	return allocations, nil
}

func runReport(ctx context.Context, store *storage.SQLiteStorage) {
	console := notify.NewConsole(store)
	if err := console.PrintSummary(ctx); err != nil {
		slog.Error("report failed", "err", err)
		os.Exit(1)
	}
	if err := console.PrintRecent(ctx, 20); err != nil {
		slog.Error("report failed", "err", err)
		os.Exit(1)
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
