package webhooks

import (
	"context"
	"time"

	"github.com/coregx/webhooks/model"
)

// Filter represents query filtering options for subscriptions.
// Used by SubscriptionRepository.List to filter results.
type Filter struct {
	EventType  string // Filter by event type (empty = no filter)
	Email      string // Filter by subscriber email (empty = no filter)
	ActiveOnly bool   // Filter by active status
	Page       int    // Page number, 1-based (0 = first page)
	PageSize   int    // Results per page (0 = default)
}

// SubscriptionRepository defines the persistence interface for webhook subscriptions.
//
// Implementations must be safe for concurrent use and should use
// database transactions where appropriate.
type SubscriptionRepository interface {
	// Load retrieves a subscription by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Subscription, error)

	// Save creates a new subscription (if Id=0) or updates an existing one.
	// Returns the saved subscription with populated Id. Updates never write
	// the delivery counters or their timestamps; those columns are owned by
	// RecordDelivery and RecordFailure.
	Save(ctx context.Context, m model.Subscription) (model.Subscription, error)

	// Delete permanently removes a subscription from storage.
	Delete(ctx context.Context, m model.Subscription) error

	// FindByEmailAndURL retrieves a subscription by subscriber email and callback URL.
	// The pair is unique across subscriptions. Returns ErrNoData if not found.
	FindByEmailAndURL(ctx context.Context, email, callbackURL string) (model.Subscription, error)

	// FindActiveForEvent retrieves active subscriptions whose event type matches
	// the emitted type, either exactly or via the wildcard "*".
	// Returns empty slice if none found.
	FindActiveForEvent(ctx context.Context, eventType model.EventType) ([]model.Subscription, error)

	// List retrieves subscriptions matching the filter criteria, ordered by
	// ID. When PageSize > 0 the result is the requested 1-based page.
	// Returns empty slice if none found.
	List(ctx context.Context, filter Filter) ([]model.Subscription, error)

	// RecordDelivery increments the subscription's delivery counter and sets
	// last_delivery_at. The increment is relative (executed in SQL) so
	// concurrent deliveries never lose updates.
	RecordDelivery(ctx context.Context, id int64, at time.Time) error

	// RecordFailure increments the subscription's failure counter and sets
	// last_failure_at. The increment is relative (executed in SQL) so
	// concurrent deliveries never lose updates.
	RecordFailure(ctx context.Context, id int64, at time.Time) error
}

// DeliveryLogRepository defines the persistence interface for delivery logs.
// Delivery logs track every webhook delivery from creation through its
// terminal state and serve as the retry queue.
type DeliveryLogRepository interface {
	// Load retrieves a delivery log by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.DeliveryLog, error)

	// FindByEventID retrieves a delivery log by its event ID.
	// Returns ErrNoData if not found.
	FindByEventID(ctx context.Context, eventID string) (model.DeliveryLog, error)

	// Create inserts a new delivery log. The event ID column carries a unique
	// constraint; inserting a log with an event ID that already exists returns
	// ErrDuplicateEvent without modifying storage.
	Create(ctx context.Context, m *model.DeliveryLog) (*model.DeliveryLog, error)

	// Update persists the current state of an existing delivery log and
	// releases any claim held on it.
	Update(ctx context.Context, m *model.DeliveryLog) error

	// FindBySubscription retrieves delivery logs for a subscription.
	// Results are ordered by created_at DESC (newest first).
	FindBySubscription(ctx context.Context, subscriptionID int64, limit int) ([]model.DeliveryLog, error)

	// FindDueRetries finds unclaimed RETRYING logs whose next_retry_at has
	// passed and whose attempt budget is not exhausted.
	// Results are ordered by next_retry_at ASC (most overdue first).
	FindDueRetries(ctx context.Context, limit int) ([]model.DeliveryLog, error)

	// Claim marks a delivery log as claimed for processing. Returns false if
	// the log was already claimed by another worker. The check and the mark
	// are a single compare-and-set statement.
	Claim(ctx context.Context, id int64) (bool, error)

	// ReleaseClaim clears the claim marker without touching any other state.
	// Used when a claimed log cannot be processed.
	ReleaseClaim(ctx context.Context, id int64) error

	// DeleteOlderThan removes delivery logs created before the cutoff.
	// Returns the number of rows removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
