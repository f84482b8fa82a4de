package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSubscription(t *testing.T) {
	beforeCreate := time.Now()
	sub := NewSubscription("Acme CRM", "ops@acme.test", "https://acme.test/hooks", EventCandidateCreated, "s3cret")

	assert.Equal(t, "Acme CRM", sub.SubscriberName)
	assert.Equal(t, "ops@acme.test", sub.SubscriberEmail)
	assert.Equal(t, "https://acme.test/hooks", sub.CallbackURL)
	assert.Equal(t, EventCandidateCreated, sub.EventType)
	assert.Equal(t, "s3cret", sub.Secret)
	assert.True(t, sub.Active)

	// Default policy values
	assert.Equal(t, DefaultMaxEventsPerMinute, sub.MaxEventsPerMinute)
	assert.Equal(t, DefaultMaxRetryAttempts, sub.MaxRetryAttempts)
	assert.Equal(t, DefaultTimeoutSeconds, sub.TimeoutSeconds)

	// Counters start at zero
	assert.Equal(t, int64(0), sub.TotalDeliveries)
	assert.Equal(t, int64(0), sub.FailedDeliveries)
	assert.False(t, sub.LastDeliveryAt.Valid)
	assert.False(t, sub.LastFailureAt.Valid)

	assert.WithinDuration(t, beforeCreate, sub.CreatedAt, 1*time.Second)
	assert.WithinDuration(t, beforeCreate, sub.UpdatedAt, 1*time.Second)
}

func TestSubscription_Masked(t *testing.T) {
	sub := NewSubscription("Acme", "ops@acme.test", "https://acme.test/hooks", EventTypeAll, "super-secret")

	masked := sub.Masked()

	assert.Equal(t, MaskedSecret, masked.Secret)
	// Original is untouched
	assert.Equal(t, "super-secret", sub.Secret)
	// Everything else survives
	assert.Equal(t, sub.SubscriberName, masked.SubscriberName)
	assert.Equal(t, sub.CallbackURL, masked.CallbackURL)
	assert.Equal(t, sub.EventType, masked.EventType)
}

func TestSubscription_DeliveryTimeout(t *testing.T) {
	tests := []struct {
		name           string
		timeoutSeconds int
		want           time.Duration
	}{
		{name: "Zero falls back to default", timeoutSeconds: 0, want: 30 * time.Second},
		{name: "In range unchanged", timeoutSeconds: 15, want: 15 * time.Second},
		{name: "Below minimum clamped up", timeoutSeconds: 2, want: 5 * time.Second},
		{name: "Above maximum clamped down", timeoutSeconds: 300, want: 60 * time.Second},
		{name: "Exactly minimum", timeoutSeconds: 5, want: 5 * time.Second},
		{name: "Exactly maximum", timeoutSeconds: 60, want: 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := Subscription{TimeoutSeconds: tt.timeoutSeconds}
			assert.Equal(t, tt.want, sub.DeliveryTimeout())
		})
	}
}

func TestSubscription_TableName(t *testing.T) {
	assert.Equal(t, "webhook_subscriptions", Subscription{}.TableName())
}
