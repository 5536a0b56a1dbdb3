// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the llmanager service: the
// quota, permission and API-key enforcement core for multi-tenant LLM
// backends.
//
// Environment Variables:
//
//	DATABASE_URL - PostgreSQL connection string or Secrets Manager ARN (required)
//	REDIS_ADDR - Redis address (default: localhost:6379)
//	REDIS_PASSWORD - Redis password, literal or Secrets Manager ARN
//	AWS_REGION - enables ARN resolution through AWS Secrets Manager
//	OPS_LISTEN_ADDR - ops HTTP listener (default: :9090)
//	TOKEN_QUOTA_ALERT_THRESHOLD - webhook alert fraction (default: 0.9)
//	WEBHOOK_RETRY_ATTEMPTS / WEBHOOK_RETRY_DELAY / WEBHOOK_TIMEOUT
//	DEFAULT_TOKEN_QUOTA - tokens per tenant (default: 100000)
//	PRICING_FILE - optional YAML pricing override table
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/karnagge/llmanager/auth"
	"github.com/karnagge/llmanager/config"
	"github.com/karnagge/llmanager/gateway"
	"github.com/karnagge/llmanager/llm"
	"github.com/karnagge/llmanager/quota"
	"github.com/karnagge/llmanager/shared/logger"
	"github.com/karnagge/llmanager/webhook"
)

func main() {
	lg := log.New(os.Stdout, "[llmanager] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		lg.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.PostgresDSN == "" {
		lg.Fatal("DATABASE_URL is required")
	}

	// DATABASE_URL and REDIS_PASSWORD may be Secrets Manager ARNs;
	// resolve them before opening the stores.
	resolveCtx, resolveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	var resolver config.SecretsResolver = config.PlainResolver{}
	if cfg.AWSRegion != "" {
		awsResolver, err := config.NewAWSSecretsResolver(resolveCtx, cfg.AWSRegion, 0, lg)
		if err != nil {
			resolveCancel()
			lg.Fatalf("Failed to build secrets resolver: %v", err)
		}
		resolver = awsResolver
	}
	if err := cfg.ResolveSecrets(resolveCtx, resolver); err != nil {
		resolveCancel()
		lg.Fatalf("Failed to resolve secrets: %v", err)
	}
	resolveCancel()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		lg.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		lg.Fatalf("Failed to ping database: %v", err)
	}
	cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		lg.Fatalf("Failed to ping Redis: %v", err)
	}

	pricing := quota.NewPricing(lg)
	if cfg.PricingFile != "" {
		if err := pricing.LoadPricingFile(cfg.PricingFile); err != nil {
			lg.Fatalf("Failed to load pricing file: %v", err)
		}
	}

	notifier := webhook.NewNotifierWithOptions(
		webhook.NewRedisStatusStore(redisClient),
		&http.Client{Timeout: cfg.WebhookTimeout},
		cfg.WebhookRetryAttempts,
		cfg.WebhookRetryDelay,
		lg,
	)

	ledger := quota.NewLedgerWithOptions(
		quota.NewRedisCounterStore(redisClient),
		quota.NewPostgresRepository(db),
		pricing,
		notifier,
		cfg.AlertThreshold,
		lg,
	)

	registry := llm.NewRegistry(lg)
	// Providers are registered by deployment-specific wiring; the core
	// ships without upstream adapters.

	// Route handlers are external collaborators; the binary wires the
	// admission pipeline and serves only the ops endpoints.
	gw := gateway.New(auth.NewGate(db, lg), ledger, registry, logger.New("gateway"))

	opsServer := &http.Server{
		Addr:         cfg.OpsListenAddr,
		Handler:      opsHandler(db, redisClient, gw),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		lg.Printf("Ops listener on %s", cfg.OpsListenAddr)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatalf("Ops listener failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	lg.Println("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		lg.Printf("Ops listener shutdown error: %v", err)
	}
}

// opsHandler serves health and metrics on the ops listener.
func opsHandler(db *sql.DB, redisClient *redis.Client, gw *gateway.Gateway) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if gw == nil {
			http.Error(w, "admission pipeline not wired", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
	}).Handler(r)
}
