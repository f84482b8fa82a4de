package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/coregx/webhooks/model"
	"github.com/coregx/webhooks/retry"
	"github.com/coregx/webhooks/signature"
)

// UserAgent is sent with every outbound webhook request.
const UserAgent = "coregx-webhook-engine/1.0"

// Outbound request headers.
const (
	HeaderSignature       = "X-Webhook-Signature"
	HeaderTimestamp       = "X-Webhook-Timestamp"
	HeaderSubscriptionID  = "X-Webhook-Subscription-Id"
	HeaderEventType       = "X-Event-Type"
	HeaderEventID         = "X-Event-Id"
	HeaderDeliveryAttempt = "X-Delivery-Attempt"
)

const (
	// connectTimeout bounds TCP connection establishment separately from
	// the per-subscription request timeout.
	connectTimeout = 10 * time.Second

	// maxResponseBodyBytes caps how much of the receiver's response body
	// is stored in the delivery log.
	maxResponseBodyBytes = 4096
)

// DeliveryWorker executes webhook delivery attempts. Each attempt signs the
// stored envelope payload with a fresh timestamp, POSTs it to the
// subscription's callback URL, and records the outcome in the delivery log:
// DELIVERED on a 2xx response, RETRYING with an exponential backoff schedule
// while attempts remain, FAILED once the attempt budget is exhausted.
//
// The envelope payload recorded at dispatch time is sent byte for byte on
// every attempt; only the signature timestamp changes between attempts.
//
// Thread safety: Safe for concurrent use.
type DeliveryWorker struct {
	subscriptions SubscriptionRepository
	logs          DeliveryLogRepository
	client        *http.Client
	policy        retry.Policy
	logger        Logger
	notifications NotificationService
}

// DeliveryWorkerOption is a function that configures a DeliveryWorker.
type DeliveryWorkerOption func(*DeliveryWorker) error

// NewDeliveryWorker creates a new DeliveryWorker with the provided options.
//
// Required options:
//   - WithDeliveryWorkerRepositories: subscription and delivery log repositories
//   - WithDeliveryWorkerLogger: logger instance
//
// Optional options:
//   - WithDeliveryWorkerHTTPClient: custom HTTP client
//   - WithDeliveryWorkerRetryPolicy: custom backoff policy
//   - WithDeliveryWorkerNotifications: failure notification service
func NewDeliveryWorker(opts ...DeliveryWorkerOption) (*DeliveryWorker, error) {
	w := &DeliveryWorker{
		policy:        retry.DefaultPolicy(),
		notifications: &NoOpNotificationService{},
	}

	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply delivery worker option", err)
		}
	}

	// Validate required dependencies
	if w.subscriptions == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionRepository is required (use WithDeliveryWorkerRepositories)")
	}
	if w.logs == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryLogRepository is required (use WithDeliveryWorkerRepositories)")
	}
	if w.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithDeliveryWorkerLogger)")
	}

	if w.client == nil {
		w.client = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
			},
		}
	}

	return w, nil
}

// WithDeliveryWorkerRepositories sets the required repository dependencies.
// Both repositories are required and must not be nil.
//
// This is a required option for NewDeliveryWorker.
func WithDeliveryWorkerRepositories(
	subscriptionRepo SubscriptionRepository,
	logRepo DeliveryLogRepository,
) DeliveryWorkerOption {
	return func(w *DeliveryWorker) error {
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}
		if logRepo == nil {
			return fmt.Errorf("logRepo cannot be nil")
		}
		w.subscriptions = subscriptionRepo
		w.logs = logRepo
		return nil
	}
}

// WithDeliveryWorkerLogger sets the logger instance for the delivery worker.
// Logger is required and must not be nil.
//
// This is a required option for NewDeliveryWorker.
func WithDeliveryWorkerLogger(logger Logger) DeliveryWorkerOption {
	return func(w *DeliveryWorker) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		w.logger = logger
		return nil
	}
}

// WithDeliveryWorkerHTTPClient sets a custom HTTP client for outbound requests.
// The per-subscription timeout is still applied per request via the context.
func WithDeliveryWorkerHTTPClient(client *http.Client) DeliveryWorkerOption {
	return func(w *DeliveryWorker) error {
		if client == nil {
			return fmt.Errorf("client cannot be nil")
		}
		w.client = client
		return nil
	}
}

// WithDeliveryWorkerRetryPolicy sets a custom backoff policy.
// The default is retry.DefaultPolicy(): 30s base, doubling per attempt,
// capped at 10 minutes, with up to 20% jitter.
func WithDeliveryWorkerRetryPolicy(policy retry.Policy) DeliveryWorkerOption {
	return func(w *DeliveryWorker) error {
		w.policy = policy
		return nil
	}
}

// WithDeliveryWorkerNotifications sets an optional notification service.
// If not provided, NoOpNotificationService is used (no notifications).
func WithDeliveryWorkerNotifications(service NotificationService) DeliveryWorkerOption {
	return func(w *DeliveryWorker) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		w.notifications = service
		return nil
	}
}

// Attempt performs one delivery attempt for the given log entry.
//
// If the log has not been persisted yet (ID=0), it is created first; a
// duplicate event ID means another dispatch already recorded this event and
// the attempt is skipped without error. The outcome of the HTTP call is
// written back to the log before Attempt returns.
func (w *DeliveryWorker) Attempt(ctx context.Context, sub model.Subscription, log *model.DeliveryLog) error {
	if log.ID == 0 {
		created, err := w.logs.Create(ctx, log)
		if err != nil {
			if errors.Is(err, ErrDuplicateEvent) {
				w.logger.Debugf("Skipping duplicate event %s for subscription %d", log.EventID, log.SubscriptionID)
				return nil
			}
			return NewErrorWithCause(ErrCodeDatabase, "failed to create delivery log", err)
		}
		log = created
	}

	if err := log.CanAttempt(); err != nil {
		w.logger.Debugf("Cannot attempt delivery for log %d: %v", log.ID, err)
		return err
	}

	statusCode, body, duration, deliveryErr := w.post(ctx, sub, log)

	if deliveryErr == nil {
		return w.handleSuccess(ctx, sub, log, statusCode, body, duration)
	}
	return w.handleFailure(ctx, sub, log, statusCode, deliveryErr)
}

// post signs the payload and sends it to the subscription's callback URL.
// A non-2xx response is reported as an error alongside the status code.
func (w *DeliveryWorker) post(ctx context.Context, sub model.Subscription, log *model.DeliveryLog) (int, string, time.Duration, error) {
	payload := []byte(log.Payload)
	now := time.Now()
	sig := signature.Sign(payload, sub.Secret, now.Unix())

	reqCtx, cancel := context.WithTimeout(ctx, sub.DeliveryTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.CallbackURL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", 0, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderSignature, sig)
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", now.Unix()))
	req.Header.Set(HeaderSubscriptionID, fmt.Sprintf("%d", sub.ID))
	req.Header.Set(HeaderEventType, log.EventType.String())
	req.Header.Set(HeaderEventID, log.EventID)
	req.Header.Set(HeaderDeliveryAttempt, fmt.Sprintf("%d", log.AttemptNumber))

	start := time.Now()
	resp, err := w.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return 0, "", duration, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, string(bodyBytes), duration,
			fmt.Errorf("received status %d", resp.StatusCode)
	}

	return resp.StatusCode, string(bodyBytes), duration, nil
}

// handleSuccess marks the log DELIVERED and updates subscription counters.
func (w *DeliveryWorker) handleSuccess(ctx context.Context, sub model.Subscription, log *model.DeliveryLog, statusCode int, body string, duration time.Duration) error {
	log.MarkDelivered(statusCode, body, duration)

	if err := w.logs.Update(ctx, log); err != nil {
		w.releaseClaim(ctx, log.ID)
		return NewErrorWithCause(ErrCodeDatabase, "failed to mark delivery log as delivered", err)
	}

	if err := w.subscriptions.RecordDelivery(ctx, sub.ID, time.Now()); err != nil {
		w.logger.Errorf("Failed to record delivery stats for subscription %d: %v", sub.ID, err)
	}

	w.logger.Infof("Delivered event %s to subscription %d (status=%d, attempt=%d, duration=%dms)",
		log.EventID, sub.ID, statusCode, log.AttemptNumber, duration.Milliseconds())
	return nil
}

// handleFailure schedules a retry or marks the log permanently FAILED.
func (w *DeliveryWorker) handleFailure(ctx context.Context, sub model.Subscription, log *model.DeliveryLog, statusCode int, deliveryErr error) error {
	if log.CanRetry() {
		delay := w.policy.Delay(log.AttemptNumber)
		log.ScheduleRetry(statusCode, deliveryErr.Error(), delay)

		if err := w.logs.Update(ctx, log); err != nil {
			w.releaseClaim(ctx, log.ID)
			return NewErrorWithCause(ErrCodeDatabase, "failed to schedule retry", err)
		}

		if err := w.notifications.NotifyDeliveryFailure(ctx, log, deliveryErr); err != nil {
			w.logger.Warnf("Failed to send delivery failure notification: %v", err)
		}

		w.logger.Warnf("Delivery failed for event %s (subscription=%d, attempt=%d/%d, next_retry=%v): %v",
			log.EventID, sub.ID, log.AttemptNumber-1, log.MaxAttempts, delay, deliveryErr)
		return NewErrorWithCause(ErrCodeDelivery, "delivery failed, retry scheduled", deliveryErr)
	}

	log.MarkFailed(statusCode, deliveryErr.Error())

	if err := w.logs.Update(ctx, log); err != nil {
		w.releaseClaim(ctx, log.ID)
		return NewErrorWithCause(ErrCodeDatabase, "failed to mark delivery log as failed", err)
	}

	if err := w.subscriptions.RecordFailure(ctx, sub.ID, time.Now()); err != nil {
		w.logger.Errorf("Failed to record failure stats for subscription %d: %v", sub.ID, err)
	}

	if err := w.notifications.NotifyDeliveryExhausted(ctx, log); err != nil {
		w.logger.Warnf("Failed to send delivery exhausted notification: %v", err)
	}

	w.logger.Errorf("Delivery permanently failed for event %s (subscription=%d, attempts=%d): %v",
		log.EventID, sub.ID, log.MaxAttempts, deliveryErr)
	return NewErrorWithCause(ErrCodeDelivery, "delivery failed permanently", deliveryErr)
}

// releaseClaim clears the claim marker after a failed finalizing update, so
// the row stays visible to future sweeps instead of being stranded in a
// claimed state with no terminal status.
func (w *DeliveryWorker) releaseClaim(ctx context.Context, id int64) {
	if err := w.logs.ReleaseClaim(ctx, id); err != nil {
		w.logger.Errorf("Failed to release claim on delivery log %d: %v", id, err)
	}
}

// RetrySchedule returns a human-readable description of the backoff schedule
// for the given attempt budget. Useful for displaying retry configuration.
//
// Example output: "30s → 1m0s → 2m0s → 4m0s → 8m0s".
func (w *DeliveryWorker) RetrySchedule(maxAttempts int) string {
	return w.policy.Schedule(maxAttempts)
}
