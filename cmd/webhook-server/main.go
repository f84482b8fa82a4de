// Package main provides the webhook server executable with HTTP API and background sweepers.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coregx/webhooks"
	"github.com/coregx/webhooks/adapters/relica"
	"github.com/coregx/webhooks/cmd/webhook-server/internal/api"
	"github.com/coregx/webhooks/cmd/webhook-server/internal/config"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SimpleLogger implements webhooks.Logger for standard logging.
type SimpleLogger struct{}

func (l *SimpleLogger) Debugf(format string, args ...interface{}) {
	log.Printf("[DEBUG] "+format, args...)
}
func (l *SimpleLogger) Infof(format string, args ...interface{}) {
	log.Printf("[INFO] "+format, args...)
}
func (l *SimpleLogger) Warnf(format string, args ...interface{}) {
	log.Printf("[WARN] "+format, args...)
}
func (l *SimpleLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[ERROR] "+format, args...)
}
func (l *SimpleLogger) Info(args ...interface{}) {
	log.Println(append([]interface{}{"[INFO]"}, args...)...)
}

func main() {
	log.Println("🚀 Starting Webhook Server v1.0.0...")

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("📝 Configuration loaded:")
	log.Printf("   Server: %s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("   Database: %s (%s:%d)", cfg.Database.Driver, cfg.Database.Host, cfg.Database.Port)
	log.Printf("   Pool: %d workers, queue %d", cfg.Webhook.PoolWorkers, cfg.Webhook.PoolQueueSize)
	log.Printf("   Sweep interval: %ds", cfg.Webhook.SweepInterval)

	// Connect to database
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Failed to close database: %v", closeErr)
		}
	}()

	// Test connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	// Create logger
	logger := &SimpleLogger{}

	// Create repositories using Relica adapters
	var repos *relica.Repositories
	if cfg.Database.Prefix != "" {
		repos = relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	} else {
		repos = relica.NewRepositories(db, cfg.Database.Driver)
	}
	log.Println("✅ Repositories initialized (Relica adapters)")

	// Create notification service
	var notificationService webhooks.NotificationService
	if cfg.Webhook.EnableNotifications {
		notificationService = webhooks.NewLoggingNotificationService(logger)
	} else {
		notificationService = &webhooks.NoOpNotificationService{}
	}

	// Create delivery pool
	pool := webhooks.NewDeliveryPool(cfg.Webhook.PoolWorkers, cfg.Webhook.PoolQueueSize)
	defer pool.Close()

	// Create DeliveryWorker
	worker, err := webhooks.NewDeliveryWorker(
		webhooks.WithDeliveryWorkerRepositories(repos.Subscription, repos.DeliveryLog),
		webhooks.WithDeliveryWorkerLogger(logger),
		webhooks.WithDeliveryWorkerNotifications(notificationService),
	)
	if err != nil {
		log.Fatalf("Failed to create delivery worker: %v", err)
	}
	log.Println("✅ DeliveryWorker created")

	// Create Dispatcher
	dispatcher, err := webhooks.NewDispatcher(
		webhooks.WithDispatcherRepositories(repos.Subscription, repos.DeliveryLog),
		webhooks.WithDispatcherWorker(worker),
		webhooks.WithDispatcherPool(pool),
		webhooks.WithDispatcherLogger(logger),
		webhooks.WithDispatcherEnvironment(cfg.Webhook.Environment),
	)
	if err != nil {
		log.Fatalf("Failed to create dispatcher: %v", err)
	}
	log.Println("✅ Dispatcher created")

	// Create SubscriptionService
	subscriptionService, err := webhooks.NewSubscriptionService(
		webhooks.WithSubscriptionServiceRepositories(repos.Subscription, repos.DeliveryLog),
		webhooks.WithSubscriptionServiceLogger(logger),
		webhooks.WithSubscriptionServiceNotifications(notificationService),
	)
	if err != nil {
		log.Fatalf("Failed to create subscription service: %v", err)
	}
	log.Println("✅ SubscriptionService created")

	// Create sweepers
	retrySweeper, err := webhooks.NewRetrySweeper(
		webhooks.WithRetrySweeperRepositories(repos.Subscription, repos.DeliveryLog),
		webhooks.WithRetrySweeperWorker(worker),
		webhooks.WithRetrySweeperPool(pool),
		webhooks.WithRetrySweeperLogger(logger),
		webhooks.WithRetrySweeperBatchSize(cfg.Webhook.SweepBatchSize),
	)
	if err != nil {
		log.Fatalf("Failed to create retry sweeper: %v", err)
	}

	retention := time.Duration(cfg.Webhook.RetentionDays) * 24 * time.Hour
	retentionSweeper, err := webhooks.NewRetentionSweeper(repos.DeliveryLog, logger, retention)
	if err != nil {
		log.Fatalf("Failed to create retention sweeper: %v", err)
	}
	log.Println("✅ Sweepers created")

	// Start sweepers in background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		log.Printf("🔄 Starting retry sweeper (interval: %ds)...", cfg.Webhook.SweepInterval)
		retrySweeper.Run(ctx, time.Duration(cfg.Webhook.SweepInterval)*time.Second)
	}()
	go retentionSweeper.Run(ctx, webhooks.DefaultRetentionInterval)

	// Create API handler
	handler := api.NewHandler(dispatcher, subscriptionService, logger)

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/notify", handler.HandleNotify)
	mux.HandleFunc("/api/v1/subscriptions", handler.HandleSubscriptions)
	mux.HandleFunc("/api/v1/subscriptions/", handler.HandleSubscriptionByID) // Note trailing slash for :id
	mux.HandleFunc("/api/v1/health", handler.HandleHealth)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("🌐 HTTP server listening on %s", addr)
		log.Println("📡 API Endpoints:")
		log.Println("   POST   /api/v1/notify")
		log.Println("   POST   /api/v1/subscriptions")
		log.Println("   GET    /api/v1/subscriptions")
		log.Println("   GET    /api/v1/subscriptions/:id")
		log.Println("   DELETE /api/v1/subscriptions/:id")
		log.Println("   POST   /api/v1/subscriptions/:id/toggle")
		log.Println("   POST   /api/v1/subscriptions/:id/regenerate-secret")
		log.Println("   GET    /api/v1/subscriptions/:id/logs")
		log.Println("   POST   /api/v1/subscriptions/test")
		log.Println("   GET    /api/v1/health")
		log.Println()
		log.Println("✅ Webhook Server is ready!")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	cancel() // Stop sweepers
	log.Println("✅ Server stopped gracefully")
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler, logger webhooks.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}
