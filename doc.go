// Package webhooks provides a production-ready webhook event notification
// engine for Go with signed deliveries, exponential backoff retries, and a
// complete delivery audit trail.
//
// Works both as a library for embedding in your application AND as a standalone
// microservice with REST API.
//
// # Features
//
//   - At-Least-Once Delivery with guaranteed retry until success or exhaustion
//   - Exponential Backoff: 30s → 1m → 2m → 4m → 8m (cap 10m) with up to 20% jitter
//   - HMAC-SHA256 Signatures with per-subscription secrets and replay protection
//   - Event Type Matching with exact types and the "*" wildcard
//   - Delivery Logs tracking every attempt from PENDING to DELIVERED or FAILED
//   - Domain-Driven Design with rich domain models containing business logic
//   - Repository Pattern for clean data access abstraction
//   - Options Pattern for modern Go API design (2025 best practices)
//   - Pluggable architecture: bring your own Logger, Notification system
//   - Multi-Database Support: MySQL, PostgreSQL, SQLite via Relica adapters
//   - Bounded Delivery Pool with caller-runs backpressure under overload
//   - Embedded Migrations for easy database setup
//   - Cloud Native: 12-factor app, ENV config, health checks
//
// # Quick Start
//
// # Option 1: As Embedded Library
//
// Connect to the database and wire the Relica adapters:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/webhooks"
//	    "github.com/coregx/webhooks/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	db, _ := sql.Open("mysql", "user:pass@tcp(localhost:3306)/webhooks?parseTime=true")
//	repos := relica.NewRepositories(db, "mysql")
//
// Create the engine components with the Options Pattern:
//
//	pool := webhooks.NewDeliveryPool(5, 500)
//
//	worker, _ := webhooks.NewDeliveryWorker(
//	    webhooks.WithDeliveryWorkerRepositories(repos.Subscription, repos.DeliveryLog),
//	    webhooks.WithDeliveryWorkerLogger(logger),
//	)
//
//	dispatcher, _ := webhooks.NewDispatcher(
//	    webhooks.WithDispatcherRepositories(repos.Subscription, repos.DeliveryLog),
//	    webhooks.WithDispatcherWorker(worker),
//	    webhooks.WithDispatcherPool(pool),
//	    webhooks.WithDispatcherLogger(logger),
//	)
//
//	sweeper, _ := webhooks.NewRetrySweeper(
//	    webhooks.WithRetrySweeperRepositories(repos.Subscription, repos.DeliveryLog),
//	    webhooks.WithRetrySweeperWorker(worker),
//	    webhooks.WithRetrySweeperPool(pool),
//	    webhooks.WithRetrySweeperLogger(logger),
//	)
//	go sweeper.Run(ctx, 60*time.Second)
//
// Emit an event:
//
//	result, err := dispatcher.Notify(ctx, model.EventCandidateCreated, map[string]any{
//	    "candidateId": 123,
//	    "name":        "Jane Doe",
//	})
//
// # Option 2: As Standalone Service
//
// Run the standalone webhook server:
//
//	cd cmd/webhook-server
//	go run .
//
// Access REST API at http://localhost:8080:
//
//	# Register a subscription
//	curl -X POST http://localhost:8080/api/v1/subscriptions \
//	  -H "Content-Type: application/json" \
//	  -d '{"subscriberName":"CRM","subscriberEmail":"ops@example.com","callbackUrl":"https://crm.example.com/hooks","eventType":"candidate.created"}'
//
//	# Emit an event
//	curl -X POST http://localhost:8080/api/v1/notify \
//	  -H "Content-Type: application/json" \
//	  -d '{"eventType":"candidate.created","data":{"candidateId":123}}'
//
//	# Health check
//	curl http://localhost:8080/api/v1/health
//
// # Signature Verification
//
// Every delivery carries an X-Webhook-Signature header of the form
// "t=<unix seconds>,v1=<base64 HMAC-SHA256>". Receivers verify with the
// signature package:
//
//	err := signature.Verify(header, payload, secret, time.Now(), signature.DefaultSkewWindow)
//
// The HMAC is computed over "<timestamp>.<payload>" so neither the payload
// nor the timestamp can be altered without invalidating the signature, and
// the skew window bounds replay of captured requests.
package webhooks
