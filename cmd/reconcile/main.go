package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	_ "github.com/lib/pq"

	"chainpay/internal/broadcast"
	"chainpay/internal/reconcile"
	"chainpay/internal/repository/postgres"
	"chainpay/pkg/config"
	"chainpay/pkg/logger"
)

// Runs one reconciliation pass and prints the report. Meant for cron.
func main() {
	cfg := config.Load()
	log := logger.New("chainpay-reconcile")

	db, err := postgres.Connect(cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	txRepo := postgres.NewTransactionRepository(db)
	watcher := broadcast.NewWatcher(
		txRepo,
		broadcast.NewSimulated(),
		log,
		cfg.Broadcast.ConfirmInterval,
		cfg.Broadcast.ConfirmTimeout,
	)
	svc := reconcile.NewService(txRepo, watcher, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := svc.Run(ctx)
	if err != nil {
		log.Fatal("Reconciliation pass failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if report.OrphanSends > 0 {
		os.Exit(1)
	}
}
