package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finsync/internal/config"
	"finsync/internal/db"
	"finsync/internal/handlers"
	"finsync/internal/provider"
	"finsync/internal/services"
	"finsync/internal/store"
	"finsync/internal/websocket"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	accounts := store.NewAccountStore(database)
	transactions := store.NewTransactionStore(database)
	sessions := store.NewSessionStore(database)
	locks := store.NewSyncLockStore(database)
	events := store.NewEventStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout, cfg.ProviderInFlight)
	tracker := services.NewSyncStateTracker(locks, accounts)
	engine := services.NewSyncEngine(txRunner, tracker, accounts, transactions, providerClient, events, hub, services.SyncEngineConfig{
		LockTTL:          cfg.SyncLockTTL,
		HardCeiling:      cfg.SyncHardCeiling,
		MaxSilentRetries: cfg.MaxSilentRetries,
	})
	sessionManager := services.NewOAuthSessionManager(providerClient, sessions, events, cfg.LinkSessionTTL)
	linkService := services.NewAccountLinkService(providerClient, accounts, txRunner, engine, events, cfg.InitialSyncWait)
	notifier := services.NewEventNotifier(events)
	reconciler := services.NewReconciler(accounts, sessions, engine, providerClient, notifier, services.ReconcilerConfig{
		Interval:         cfg.ReconcileInterval,
		StalenessWindow:  cfg.StalenessWindow,
		ReauthGrace:      cfg.ReauthGracePeriod,
		RetryBackoffBase: cfg.RetryBackoffBase,
		RetryBackoffCap:  cfg.RetryBackoffCap,
		Workers:          cfg.SyncWorkers,
		QueueDepth:       cfg.SyncQueueDepth,
	})

	ctx, stop := context.WithCancel(context.Background())
	reconciler.Start(ctx)

	handler := handlers.New(cfg, accounts, transactions, sessionManager, linkService, reconciler, tracker, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("finsync API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
	stop()
	reconciler.Wait()
}
