package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"promogate/config"
	"promogate/lifecycle"
	"promogate/models"
	"promogate/observability"
	"promogate/observability/logging"
	"promogate/oracle"
	"promogate/recon"
	"promogate/server"
	"promogate/store"
	"promogate/watcher"
)

func main() {
	logger := logging.Setup("promogated", os.Getenv("PROMO_ENV"))

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := models.AutoMigrate(db); err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	priceOracle := oracle.New(&http.Client{Timeout: cfg.RPCTimeout}, cfg.PriceFeedURL, cfg.PriceCacheTTL,
		oracle.WithLogger(logger.With("component", "oracle")))

	registry, collectors, err := buildWatchers(cfg)
	if err != nil {
		logger.Error("watcher setup failed", "error", err)
		os.Exit(1)
	}
	logger.Info("payment chains configured", "chains", registry.Chains())

	manager, err := lifecycle.NewManager(lifecycle.Config{
		Store:      store.New(db),
		Oracle:     priceOracle,
		Collectors: collectors,
		Deadline:   cfg.PaymentDeadline,
		Logger:     logger.With("component", "lifecycle"),
	})
	if err != nil {
		logger.Error("lifecycle setup failed", "error", err)
		os.Exit(1)
	}

	worker, err := recon.NewWorker(recon.Config{
		Manager:  manager,
		Watchers: registry,
		Interval: cfg.ScanInterval,
		Backoff:  cfg.ErrorBackoff,
		Logger:   logger.With("component", "recon"),
		Metrics:  observability.Worker(),
	})
	if err != nil {
		logger.Error("worker setup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go worker.Run(ctx)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.New(manager, priceOracle, logger.With("component", "http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}

// buildWatchers wires a per-chain watcher for every configured chain and
// returns the collector address table used at request creation.
func buildWatchers(cfg *config.Config) (*watcher.Registry, map[models.Chain]string, error) {
	registry := watcher.NewRegistry()
	collectors := make(map[models.Chain]string, len(cfg.Chains))
	toleranceBps := watcher.ToleranceBps(cfg.TolerancePercent)

	for chain, entry := range cfg.Chains {
		collectors[chain] = entry.Collector
		switch chain {
		case models.ChainEthereum, models.ChainPolygon:
			client, err := watcher.DialEVMClient(entry.RPCURL)
			if err != nil {
				return nil, nil, err
			}
			registry.Register(chain, watcher.NewEVMWatcher(client, chain, watcher.EVMConfig{
				MaxBlocks:    cfg.EVMMaxBlocks,
				ToleranceBps: toleranceBps,
			}))
		case models.ChainSolana:
			registry.Register(chain, watcher.NewSolanaWatcher(entry.RPCURL, watcher.SolanaConfig{
				SignatureLimit: cfg.ChainTxLimit,
				ToleranceBps:   toleranceBps,
				Timeout:        cfg.RPCTimeout,
			}))
		case models.ChainXRP:
			registry.Register(chain, watcher.NewXRPWatcher(entry.RPCURL, watcher.XRPLConfig{
				TransactionLimit: cfg.ChainTxLimit,
				ToleranceBps:     toleranceBps,
				Timeout:          cfg.RPCTimeout,
			}))
		}
	}
	return registry, collectors, nil
}
