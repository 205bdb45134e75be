package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/satonic/roomtrade/internal/config"
	"github.com/satonic/roomtrade/internal/handlers"
	"github.com/satonic/roomtrade/internal/ledger"
	"github.com/satonic/roomtrade/internal/logging"
	"github.com/satonic/roomtrade/internal/marketplace"
	"github.com/satonic/roomtrade/internal/services"
	"github.com/satonic/roomtrade/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := services.SessionDeps{
		Market:             marketplace.NewClient(cfg.Marketplace, logger.Named("marketplace")),
		Stream:             ledger.NewStream(cfg.Ledger.URL, logger.Named("ledger")),
		Wallets:            services.NewWalletService(cfg.Room.ServiceAccount),
		BrokerWallet:       cfg.Room.BrokerWallet,
		BrokerFeeThreshold: cfg.Ledger.BrokerFeeThreshold,
	}

	var trades handlers.TradeLister
	if cfg.Database.Enabled() {
		db, err := store.NewDatabase(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := store.NewTradeRepository(db)
		deps.Activity = repo
		trades = repo
	} else {
		logger.Info("database not configured, ledger activity will not be recorded")
	}

	manager := services.NewSessionManager(deps, logger.Named("sessions"))
	defer manager.StopAll()

	hub := handlers.NewHub(manager, logger.Named("ws"))
	manager.SetPublisher(hub)
	go hub.Run(ctx)

	router := handlers.NewRouter(handlers.RouterConfig{
		Sessions:       manager,
		Auth:           services.NewAuthService(cfg.Auth),
		Hub:            hub,
		Trades:         trades,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}
	return nil
}
