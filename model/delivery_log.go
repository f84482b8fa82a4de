package model

import (
	"database/sql"
	"time"
)

// DeliveryStatus represents the lifecycle state of a delivery log.
type DeliveryStatus string

const (
	// DeliveryStatusPending indicates the event is awaiting its first attempt.
	DeliveryStatusPending DeliveryStatus = "PENDING"

	// DeliveryStatusDelivered indicates the subscriber acknowledged with 2xx. Terminal.
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"

	// DeliveryStatusRetrying indicates a transient failure awaiting retry.
	DeliveryStatusRetrying DeliveryStatus = "RETRYING"

	// DeliveryStatusFailed indicates attempts are exhausted or the failure
	// was non-retryable. Terminal.
	DeliveryStatusFailed DeliveryStatus = "FAILED"
)

// DeliveryLog is the persisted record of one logical event's delivery to one
// subscription. One row covers all attempts: retries mutate the row in place,
// reusing the stored payload bytes and event id.
//
// Lifecycle:
//  1. Created with status=PENDING at first dispatch
//  2. Attempt outcome → DELIVERED (2xx) or RETRYING (attempts remain) or FAILED
//  3. RETRYING rows are re-attempted by the retry sweeper once NextRetryAt passes
//  4. Rows older than the retention cutoff are deleted regardless of status
//
// The event id is a UUID, unique across all logs, stable across retries: it is
// the idempotency key subscribers deduplicate on.
type DeliveryLog struct {
	ID             int64          `json:"id"`
	SubscriptionID int64          `json:"subscriptionId" db:"subscription_id"`
	EventID        string         `json:"eventId" db:"event_id"`
	EventType      EventType      `json:"eventType" db:"event_type"`
	Payload        string         `json:"payload" db:"payload"` // envelope JSON, immutable once set
	Status         DeliveryStatus `json:"status" db:"status"`
	HTTPStatusCode sql.NullInt64  `json:"httpStatusCode" db:"http_status_code"`
	ResponseBody   sql.NullString `json:"responseBody" db:"response_body"`
	ErrorMessage   sql.NullString `json:"errorMessage" db:"error_message"`
	AttemptNumber  int            `json:"attemptNumber" db:"attempt_number"`
	MaxAttempts    int            `json:"maxAttempts" db:"max_attempts"`
	NextRetryAt    sql.NullTime   `json:"nextRetryAt" db:"next_retry_at"`
	DurationMs     sql.NullInt64  `json:"durationMs" db:"duration_ms"`
	ClaimedAt      sql.NullTime   `json:"claimedAt" db:"claimed_at"` // in-flight marker, see Claim on the repository
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	DeliveredAt    sql.NullTime   `json:"deliveredAt" db:"delivered_at"`
}

// TableName returns the database table name for DeliveryLog.
func (l *DeliveryLog) TableName() string {
	return tablePrefix + "delivery_logs"
}

// NewDeliveryLog creates a PENDING delivery log for the first attempt of one
// logical event to one subscription. MaxAttempts is copied from the
// subscription at creation so later policy changes don't affect in-flight rows.
func NewDeliveryLog(subscriptionID int64, eventID string, eventType EventType, payload string, maxAttempts int) DeliveryLog {
	return DeliveryLog{
		SubscriptionID: subscriptionID,
		EventID:        eventID,
		EventType:      eventType,
		Payload:        payload,
		Status:         DeliveryStatusPending,
		AttemptNumber:  1,
		MaxAttempts:    maxAttempts,
		CreatedAt:      time.Now(),
	}
}

// IsTerminal reports whether the log has reached a terminal status.
func (l *DeliveryLog) IsTerminal() bool {
	return l.Status == DeliveryStatusDelivered || l.Status == DeliveryStatusFailed
}

// MarkDelivered transitions the log to DELIVERED and records the response.
func (l *DeliveryLog) MarkDelivered(statusCode int, responseBody string, duration time.Duration) {
	now := time.Now()
	l.Status = DeliveryStatusDelivered
	l.HTTPStatusCode = sql.NullInt64{Int64: int64(statusCode), Valid: true}
	l.ResponseBody = sql.NullString{String: responseBody, Valid: true}
	l.ErrorMessage = sql.NullString{}
	l.DurationMs = sql.NullInt64{Int64: duration.Milliseconds(), Valid: true}
	l.NextRetryAt = sql.NullTime{}
	l.DeliveredAt = sql.NullTime{Time: now, Valid: true}
}

// ScheduleRetry transitions the log to RETRYING, increments the attempt
// counter, and records the failure detail and next retry time.
// Callers must check CanRetry first: the attempt counter never exceeds
// MaxAttempts while the status is RETRYING.
func (l *DeliveryLog) ScheduleRetry(statusCode int, errMessage string, retryAfter time.Duration) {
	l.Status = DeliveryStatusRetrying
	l.AttemptNumber++
	if statusCode > 0 {
		l.HTTPStatusCode = sql.NullInt64{Int64: int64(statusCode), Valid: true}
	} else {
		l.HTTPStatusCode = sql.NullInt64{}
	}
	l.ErrorMessage = sql.NullString{String: errMessage, Valid: true}
	l.NextRetryAt = sql.NullTime{Time: time.Now().Add(retryAfter), Valid: true}
}

// MarkFailed transitions the log to the terminal FAILED status.
func (l *DeliveryLog) MarkFailed(statusCode int, errMessage string) {
	l.Status = DeliveryStatusFailed
	if statusCode > 0 {
		l.HTTPStatusCode = sql.NullInt64{Int64: int64(statusCode), Valid: true}
	}
	l.ErrorMessage = sql.NullString{String: errMessage, Valid: true}
	l.NextRetryAt = sql.NullTime{}
}

// CanRetry reports whether another attempt is allowed after a failure.
func (l *DeliveryLog) CanRetry() bool {
	return l.AttemptNumber < l.MaxAttempts
}

// ShouldRetry reports whether the row is due for a retry attempt: status
// RETRYING, the scheduled retry time has passed, and the pending attempt
// number is still within the ceiling. After ScheduleRetry, AttemptNumber is
// the number of the attempt that has yet to run, so the final attempt
// (AttemptNumber == MaxAttempts) is still due.
func (l *DeliveryLog) ShouldRetry() bool {
	if l.Status != DeliveryStatusRetrying {
		return false
	}
	if l.AttemptNumber > l.MaxAttempts {
		return false
	}
	if !l.NextRetryAt.Valid {
		return false
	}
	return time.Now().After(l.NextRetryAt.Time)
}

// CanAttempt validates whether a delivery attempt may start now.
//
// Returns an error if not:
//   - ErrDeliveryTerminal: the row already reached DELIVERED or FAILED
//   - ErrAttemptsExhausted: the retry ceiling has been reached
//   - ErrNotReadyForRetry: the backoff delay has not elapsed yet
func (l *DeliveryLog) CanAttempt() error {
	if l.IsTerminal() {
		return ErrDeliveryTerminal
	}
	if l.AttemptNumber > l.MaxAttempts {
		return ErrAttemptsExhausted
	}
	if l.Status == DeliveryStatusRetrying && !l.ShouldRetry() {
		return ErrNotReadyForRetry
	}
	return nil
}

// Domain errors returned by DeliveryLog business logic methods.
var (
	// ErrDeliveryTerminal indicates the log already reached a terminal status.
	ErrDeliveryTerminal = DomainError{Code: "TERMINAL", Message: "Delivery already finalized"}

	// ErrAttemptsExhausted indicates the retry ceiling has been reached.
	ErrAttemptsExhausted = DomainError{Code: "ATTEMPTS_EXHAUSTED", Message: "Maximum delivery attempts exhausted"}

	// ErrNotReadyForRetry indicates the backoff delay hasn't elapsed yet.
	ErrNotReadyForRetry = DomainError{Code: "NOT_READY", Message: "Not ready for retry yet"}
)

// DomainError represents a domain-level business rule violation.
type DomainError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
}

func (e DomainError) Error() string {
	return e.Message
}
