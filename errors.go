package webhooks

import (
	"errors"
	"fmt"
)

// Error represents a webhook engine error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for webhook engine operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates a malformed request was rejected synchronously.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeDuplicate indicates a subscription already exists for the
	// (subscriber email, callback URL) pair.
	ErrCodeDuplicate = "DUPLICATE_SUBSCRIPTION"

	// ErrCodeNotFound indicates an operation referenced an unknown subscription.
	ErrCodeNotFound = "SUBSCRIPTION_NOT_FOUND"

	// ErrCodeConfiguration indicates invalid service configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates a storage operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeDelivery indicates a webhook delivery attempt failed.
	ErrCodeDelivery = "DELIVERY_ERROR"

	// ErrCodeSerialization indicates an event payload could not be encoded.
	// Serialization failures are fatal for that event and are recorded as a
	// FAILED delivery log, never silently dropped.
	ErrCodeSerialization = "SERIALIZATION_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrDuplicateEvent is returned by DeliveryLogRepository.Create when a
	// delivery log with the same event id already exists. The uniqueness
	// constraint is enforced at insert time, making Create an atomic
	// check-and-insert.
	ErrDuplicateEvent = &Error{
		Code:    ErrCodeDelivery,
		Message: "delivery log already exists for event id",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	var whErr *Error
	if errors.As(err, &whErr) {
		return whErr.Code == ErrCodeNoData
	}
	return errors.Is(err, ErrNoData)
}

// IsNotFound checks if an error carries the SUBSCRIPTION_NOT_FOUND code.
func IsNotFound(err error) bool {
	var whErr *Error
	if errors.As(err, &whErr) {
		return whErr.Code == ErrCodeNotFound
	}
	return false
}

// IsDuplicate checks if an error carries the DUPLICATE_SUBSCRIPTION code.
func IsDuplicate(err error) bool {
	var whErr *Error
	if errors.As(err, &whErr) {
		return whErr.Code == ErrCodeDuplicate
	}
	return false
}
