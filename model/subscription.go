package model

import (
	"database/sql"
	"time"
)

// MaskedSecret is the placeholder returned by read and list operations in
// place of the real signing secret. The real secret is only ever exposed by
// the create and regenerate-secret operations.
const MaskedSecret = "***HIDDEN***"

// Default delivery policy values applied when a create request leaves them unset.
const (
	DefaultMaxEventsPerMinute = 60
	DefaultMaxRetryAttempts   = 5
	DefaultTimeoutSeconds     = 30

	// MinTimeoutSeconds and MaxTimeoutSeconds bound the per-subscription
	// delivery timeout. Values outside the range are clamped.
	MinTimeoutSeconds = 5
	MaxTimeoutSeconds = 60
)

// Subscription represents a registered callback endpoint and its delivery
// policy for one event type (or the wildcard).
//
// Each subscription:
//   - Receives a signed HTTP POST for every matching emitted event
//   - Owns a signing secret used for HMAC signature verification
//   - Carries its own retry ceiling and delivery timeout
//   - Accumulates lifetime delivery statistics
//
// Lifecycle: active subscriptions receive new dispatches, inactive ones
// don't. Deactivation does not abort retries already scheduled for
// previously dispatched events.
type Subscription struct {
	ID                 int64        `json:"id"`
	SubscriberName     string       `json:"subscriberName" db:"subscriber_name"`
	SubscriberEmail    string       `json:"subscriberEmail" db:"subscriber_email"`
	CallbackURL        string       `json:"callbackUrl" db:"callback_url"`
	EventType          EventType    `json:"eventType" db:"event_type"`
	Secret             string       `json:"secret" db:"secret"`
	Active             bool         `json:"active" db:"active"`
	Description        string       `json:"description" db:"description"`
	MaxEventsPerMinute int          `json:"maxEventsPerMinute" db:"max_events_per_minute"` // declared policy, not enforced by the engine
	MaxRetryAttempts   int          `json:"maxRetryAttempts" db:"max_retry_attempts"`
	TimeoutSeconds     int          `json:"timeoutSeconds" db:"timeout_seconds"`
	TotalDeliveries    int64        `json:"totalDeliveries" db:"total_deliveries"`
	FailedDeliveries   int64        `json:"failedDeliveries" db:"failed_deliveries"`
	LastDeliveryAt     sql.NullTime `json:"lastDeliveryAt" db:"last_delivery_at"`
	LastFailureAt      sql.NullTime `json:"lastFailureAt" db:"last_failure_at"`
	CreatedAt          time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time    `json:"updatedAt" db:"updated_at"`
}

// TableName returns the database table name for Subscription.
func (s Subscription) TableName() string {
	return tablePrefix + "subscriptions"
}

// NewSubscription creates a new active subscription with default policy values.
func NewSubscription(name, email, callbackURL string, eventType EventType, secret string) Subscription {
	now := time.Now()
	return Subscription{
		SubscriberName:     name,
		SubscriberEmail:    email,
		CallbackURL:        callbackURL,
		EventType:          eventType,
		Secret:             secret,
		Active:             true,
		MaxEventsPerMinute: DefaultMaxEventsPerMinute,
		MaxRetryAttempts:   DefaultMaxRetryAttempts,
		TimeoutSeconds:     DefaultTimeoutSeconds,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Masked returns a copy with the signing secret replaced by MaskedSecret.
// Read and list operations must only ever return masked copies.
func (s Subscription) Masked() Subscription {
	s.Secret = MaskedSecret
	return s
}

// DeliveryTimeout returns the per-attempt timeout as a duration, clamped to
// [MinTimeoutSeconds, MaxTimeoutSeconds]. A zero value falls back to the default.
func (s Subscription) DeliveryTimeout() time.Duration {
	secs := s.TimeoutSeconds
	if secs == 0 {
		secs = DefaultTimeoutSeconds
	}
	if secs < MinTimeoutSeconds {
		secs = MinTimeoutSeconds
	}
	if secs > MaxTimeoutSeconds {
		secs = MaxTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}
