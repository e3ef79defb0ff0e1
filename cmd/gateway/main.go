// ==============================================================================
// CHAINPAY API - cmd/gateway/main.go
// ==============================================================================
package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/gorilla/mux"

	"chainpay/internal/authz"
	"chainpay/internal/broadcast"
	"chainpay/internal/fee"
	"chainpay/internal/handler"
	"chainpay/internal/middleware"
	"chainpay/internal/pipeline"
	"chainpay/internal/repository/postgres"
	"chainpay/internal/splitpayment"
	"chainpay/internal/treasury"
	"chainpay/internal/wallet"
	"chainpay/pkg/cache"
	"chainpay/pkg/config"
	"chainpay/pkg/logger"
	"chainpay/pkg/validator"
)

func main() {
	cfg := config.Load()
	log := logger.New("chainpay-api")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting ChainPay API", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Database connection
	db, err := postgres.Connect(cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Info("Database connected", nil)

	// Redis connection
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer redisClient.Close()

	log.Info("Redis connected", nil)

	// Repositories
	txRepo := postgres.NewTransactionRepository(db)
	feeRepo := postgres.NewFeeRepository(db)
	walletRepo := postgres.NewWalletRepository(db)
	splitRepo := postgres.NewSplitPaymentRepository(db)
	authRepo := postgres.NewTransactionAuthRepository(db)
	store := postgres.NewStore(db)

	// Services
	calculator := fee.NewCalculator(cfg.Fees)
	collector := fee.NewCollector(feeRepo, log)
	treasuryDir := treasury.NewDirectory(cfg.Treasury)

	sealKey := sha256.Sum256([]byte(cfg.Wallet.EncryptionSecret))
	keyProvider, err := wallet.NewLocalKeyProvider(sealKey[:])
	if err != nil {
		log.Fatal("Failed to initialize key provider", map[string]interface{}{
			"error": err.Error(),
		})
	}
	walletService := wallet.NewService(walletRepo, keyProvider, log)

	broadcaster := broadcast.NewSimulated()
	balances := broadcast.NewCachedBalanceProvider(
		broadcast.NewSimulatedBalanceSource(cfg.Wallet.SimulatedBalance),
		cache.NewFromClient(redisClient),
		cfg.Wallet.BalanceCacheTTL,
		log,
	)

	sendPipeline := pipeline.NewPipeline(
		store,
		calculator,
		treasuryDir,
		walletService,
		balances,
		broadcaster,
		log,
		cfg.Fees.Currency,
	)

	splitService := splitpayment.NewService(splitRepo, log, cfg.Executor.MaxRecipients)
	progressHub := handler.NewProgressHub()
	executor := splitpayment.NewExecutor(splitRepo, sendPipeline, log, cfg.Executor.Concurrency).
		WithProgressSink(progressHub)

	authzService := authz.NewService(authRepo, log, "chainpay")

	// Confirmation watcher runs alongside the API and settles pending rows.
	watcher := broadcast.NewWatcher(txRepo, broadcaster, log, cfg.Broadcast.ConfirmInterval, cfg.Broadcast.ConfirmTimeout)
	watchCtx, stopWatcher := context.WithCancel(context.Background())
	defer stopWatcher()
	go watcher.Run(watchCtx)

	// Handlers
	val := validator.New()
	txHandler := handler.NewTransactionHandler(sendPipeline, txRepo, val, log)
	feeHandler := handler.NewFeeHandler(calculator, collector, log)
	walletHandler := handler.NewWalletHandler(walletService, val, log)
	splitHandler := handler.NewSplitPaymentHandler(splitService, executor, authzService, progressHub, val, log)
	authzHandler := handler.NewAuthzHandler(authzService, val, log)

	// Router
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.NewRateLimiter(redisClient, 150, time.Minute).Limit)

	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	idemMW := middleware.NewIdempotencyMiddleware(redisClient, 24*time.Hour)

	// Health check routes (no auth)
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ready", readyCheck(db.Ping)).Methods("GET")

	// Protected routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Authenticate)
	api.Use(middleware.NewRateLimiter(redisClient, 60, time.Minute).Limit)

	// Transactions
	tx := api.PathPrefix("/transactions").Subrouter()
	tx.Handle("/send", idemMW.Require(http.HandlerFunc(txHandler.Send))).Methods("POST")
	tx.HandleFunc("/{id}", txHandler.Get).Methods("GET")
	tx.HandleFunc("", txHandler.List).Methods("GET")

	// Fees
	fees := api.PathPrefix("/fees").Subrouter()
	fees.HandleFunc("/config", feeHandler.GetConfig).Methods("GET")
	fees.HandleFunc("/calculate", feeHandler.Calculate).Methods("GET")
	fees.HandleFunc("/batch-summary", feeHandler.BatchSummary).Methods("POST")
	fees.HandleFunc("/stats", feeHandler.Stats).Methods("GET")

	// Wallets
	wallets := api.PathPrefix("/wallets").Subrouter()
	wallets.HandleFunc("", walletHandler.Register).Methods("POST")
	wallets.HandleFunc("", walletHandler.List).Methods("GET")
	wallets.HandleFunc("/{id}", walletHandler.Get).Methods("GET")

	// Transaction authorization
	security := api.PathPrefix("/security").Subrouter()
	security.HandleFunc("/pin", authzHandler.SetPin).Methods("POST")
	security.HandleFunc("/totp", authzHandler.EnrollTOTP).Methods("POST")

	// Split payments
	splits := api.PathPrefix("/split-payments").Subrouter()
	splits.HandleFunc("", splitHandler.Create).Methods("POST")
	splits.HandleFunc("", splitHandler.List).Methods("GET")
	splits.HandleFunc("/{id}", splitHandler.Get).Methods("GET")
	splits.HandleFunc("/{id}", splitHandler.Delete).Methods("DELETE")
	splits.HandleFunc("/{id}/status", splitHandler.UpdateStatus).Methods("PATCH")
	splits.HandleFunc("/{id}/recipients/{recipientId}", splitHandler.SetRecipientActive).Methods("PATCH")
	splits.Handle("/{id}/execute", idemMW.Require(http.HandlerFunc(splitHandler.Execute))).Methods("POST")
	splits.HandleFunc("/{id}/executions", splitHandler.ListExecutions).Methods("GET")
	splits.HandleFunc("/{id}/executions/{executionId}", splitHandler.GetExecution).Methods("GET")
	splits.HandleFunc("/{id}/executions/{executionId}/stream", splitHandler.StreamExecution).Methods("GET")

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Info("ChainPay API started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down ChainPay API...", nil)
	stopWatcher()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("ChainPay API forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("ChainPay API stopped gracefully", nil)
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	_ = r
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"chainpay-api","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func readyCheck(ping func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r
		if err := ping(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","reason":"database unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"chainpay-api"}`))
	}
}
