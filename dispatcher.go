package webhooks

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/coregx/webhooks/model"
)

// Dispatcher fans an emitted event out to every matching active subscription.
// For each match it builds a signed envelope, records a PENDING delivery log,
// and hands the first delivery attempt to the worker pool. Notify returns as
// soon as the attempts are scheduled; delivery outcomes are recorded
// asynchronously in the delivery logs.
type Dispatcher struct {
	subscriptionRepo SubscriptionRepository
	logRepo          DeliveryLogRepository
	worker           *DeliveryWorker
	pool             *DeliveryPool
	logger           Logger
	environment      string
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher) error

// NewDispatcher creates a new Dispatcher with the provided options.
//
// Required options:
//   - WithDispatcherRepositories: subscription and delivery log repositories
//   - WithDispatcherWorker: delivery worker that performs attempts
//   - WithDispatcherPool: worker pool for asynchronous execution
//   - WithDispatcherLogger: logger instance
//
// Optional options:
//   - WithDispatcherEnvironment: environment tag carried in envelope metadata
//
// Example:
//
//	dispatcher, err := webhooks.NewDispatcher(
//	    webhooks.WithDispatcherRepositories(subRepo, logRepo),
//	    webhooks.WithDispatcherWorker(worker),
//	    webhooks.WithDispatcherPool(pool),
//	    webhooks.WithDispatcherLogger(logger),
//	)
func NewDispatcher(opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		environment: "production",
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply dispatcher option", err)
		}
	}

	// Validate required dependencies
	if d.subscriptionRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionRepository is required (use WithDispatcherRepositories)")
	}
	if d.logRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryLogRepository is required (use WithDispatcherRepositories)")
	}
	if d.worker == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryWorker is required (use WithDispatcherWorker)")
	}
	if d.pool == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryPool is required (use WithDispatcherPool)")
	}
	if d.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithDispatcherLogger)")
	}

	return d, nil
}

// WithDispatcherRepositories sets the required repository dependencies.
func WithDispatcherRepositories(
	subscriptionRepo SubscriptionRepository,
	logRepo DeliveryLogRepository,
) DispatcherOption {
	return func(d *Dispatcher) error {
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}
		if logRepo == nil {
			return fmt.Errorf("logRepo cannot be nil")
		}
		d.subscriptionRepo = subscriptionRepo
		d.logRepo = logRepo
		return nil
	}
}

// WithDispatcherWorker sets the delivery worker used for attempts.
func WithDispatcherWorker(worker *DeliveryWorker) DispatcherOption {
	return func(d *Dispatcher) error {
		if worker == nil {
			return fmt.Errorf("worker cannot be nil")
		}
		d.worker = worker
		return nil
	}
}

// WithDispatcherPool sets the worker pool for asynchronous delivery.
func WithDispatcherPool(pool *DeliveryPool) DispatcherOption {
	return func(d *Dispatcher) error {
		if pool == nil {
			return fmt.Errorf("pool cannot be nil")
		}
		d.pool = pool
		return nil
	}
}

// WithDispatcherLogger sets the logger instance.
func WithDispatcherLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		d.logger = logger
		return nil
	}
}

// WithDispatcherEnvironment sets the environment tag carried in envelope
// metadata (default "production").
func WithDispatcherEnvironment(environment string) DispatcherOption {
	return func(d *Dispatcher) error {
		if environment == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		d.environment = environment
		return nil
	}
}

// NotifyResult represents the result of a Notify operation.
type NotifyResult struct {
	EventType       model.EventType // Emitted event type
	Matched         int             // Subscriptions matched
	Scheduled       int             // Delivery attempts scheduled
	EventIDs        []string        // Event IDs generated, one per matched subscription
	SubscriptionIDs []int64         // Matched subscription IDs
}

// Notify emits an event to all matching active subscriptions.
//
// A fresh event ID (UUID) is generated per matched subscription; the same
// event sent to two subscribers produces two independent delivery logs with
// distinct event IDs. The per-subscription envelope is serialized once at
// dispatch time and the resulting bytes are reused for every retry of that
// delivery.
//
// Notify returns after scheduling the first attempts; it never blocks on the
// receivers. An event with zero matching subscriptions is a no-op, not an
// error.
func (d *Dispatcher) Notify(ctx context.Context, eventType model.EventType, data any) (*NotifyResult, error) {
	if !eventType.IsValid() || eventType.IsWildcard() {
		return nil, NewError(ErrCodeValidation, fmt.Sprintf("invalid event type: %s", eventType))
	}

	subscriptions, err := d.subscriptionRepo.FindActiveForEvent(ctx, eventType)
	if err != nil && !IsNoData(err) {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load subscriptions", err)
	}

	result := &NotifyResult{
		EventType:       eventType,
		Matched:         len(subscriptions),
		EventIDs:        make([]string, 0, len(subscriptions)),
		SubscriptionIDs: make([]int64, 0, len(subscriptions)),
	}

	if len(subscriptions) == 0 {
		d.logger.Debugf("No active subscriptions for event type %s", eventType)
		return result, nil
	}

	// Delivery must not be cut short when the emitting request finishes.
	deliveryCtx := context.WithoutCancel(ctx)

	for _, sub := range subscriptions {
		eventID := uuid.NewString()

		envelope := model.NewEnvelope(eventID, eventType, data, sub.ID, d.environment)
		payload, err := envelope.Marshal()
		if err != nil {
			d.recordSerializationFailure(ctx, sub, eventID, eventType, err)
			continue
		}

		log := model.NewDeliveryLog(sub.ID, eventID, eventType, string(payload), sub.MaxRetryAttempts)

		subscription := sub
		d.pool.Submit(func() {
			entry := log
			if err := d.worker.Attempt(deliveryCtx, subscription, &entry); err != nil {
				d.logger.Debugf("Delivery attempt for event %s finished with error: %v", entry.EventID, err)
			}
		})

		result.Scheduled++
		result.EventIDs = append(result.EventIDs, eventID)
		result.SubscriptionIDs = append(result.SubscriptionIDs, sub.ID)
	}

	d.logger.Infof("Dispatched event %s to %d/%d subscriptions",
		eventType, result.Scheduled, result.Matched)

	return result, nil
}

// recordSerializationFailure writes a FAILED delivery log for an event whose
// payload could not be encoded. Serialization failures are never retried and
// never silently dropped.
func (d *Dispatcher) recordSerializationFailure(ctx context.Context, sub model.Subscription, eventID string, eventType model.EventType, serErr error) {
	d.logger.Errorf("Failed to serialize event %s for subscription %d: %v", eventID, sub.ID, serErr)

	log := model.NewDeliveryLog(sub.ID, eventID, eventType, "", sub.MaxRetryAttempts)
	log.MarkFailed(0, fmt.Sprintf("payload serialization failed: %v", serErr))

	if _, err := d.logRepo.Create(ctx, &log); err != nil {
		d.logger.Errorf("Failed to record serialization failure for event %s: %v", eventID, err)
	}
}
