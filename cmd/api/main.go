package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-content-gate/internal/catalog"
	"crypto-content-gate/internal/client"
	"crypto-content-gate/internal/config"
	"crypto-content-gate/internal/logger"
	"crypto-content-gate/internal/repository"
	"crypto-content-gate/internal/server"
	"crypto-content-gate/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	slogger := logger.New(cfg.Log.Level, cfg.Log.Format)

	sweepInterval, err := time.ParseDuration(cfg.Sweep.Interval)
	if err != nil {
		log.Fatal("invalid SWEEP_INTERVAL:", err)
	}
	reconcileAfter, err := time.ParseDuration(cfg.Sweep.ReconcileAfter)
	if err != nil {
		log.Fatal("invalid SWEEP_RECONCILE_AFTER:", err)
	}

	db := client.InitSqliteClient(cfg.DatabaseURL)
	oxapayClient := client.NewOxapayClient(&cfg.Oxapay, cfg.BaseURL)

	catalogStore, err := catalog.NewStore(cfg.CatalogFile)
	if err != nil {
		log.Fatal("load catalog:", err)
	}

	intentRepo := repository.NewIntentRepository(db)
	fulfillmentRepo := repository.NewFulfillmentRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	notifier := &service.LogNotifier{Logger: slogger}

	fulfillmentService := service.NewFulfillmentService(catalogStore, fulfillmentRepo, notifier, slogger)
	paymentService := service.NewPaymentService(
		intentRepo,
		fulfillmentService,
		oxapayClient,
		catalogStore,
		notifier,
		slogger,
		service.Options{
			InvoiceLifetime: time.Duration(cfg.Oxapay.InvoiceLifetimeMin) * time.Minute,
			ReconcileAfter:  reconcileAfter,
			ConfirmOnPaid:   cfg.Oxapay.ConfirmationPolicy == "immediate",
		},
	)
	adminService := service.NewAdminService(statsRepo, catalogStore, slogger)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	// Init HTTP server
	srv := server.NewServer(paymentService, adminService, cfg.Oxapay.WebhookSecret)

	log.Println("Starting HTTP server on", serverAddr)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error")
		}
	}()

	// Background sweeps: expiry of unpaid intents and reconciliation of
	// intents the webhook path lost track of. Both reuse the ledger's
	// conditional transition, so running alongside live webhooks is safe.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runSweeper(sweepCtx, paymentService, sweepInterval, slogger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Println("Signal received, starting graceful shutdown...")
	stopSweep()

	_, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(); err != nil {
		log.Fatal("HTTP server shutdown error")
	}
}

func runSweeper(ctx context.Context, paymentService service.PaymentService, interval time.Duration, slogger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := paymentService.ExpireStale(ctx); err != nil {
				slogger.Error("expiry sweep failed", "error", err)
			}
			if err := paymentService.Reconcile(ctx); err != nil {
				slogger.Error("reconcile sweep failed", "error", err)
			}
		}
	}
}
