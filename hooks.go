package webhooks

import (
	"context"

	"github.com/coregx/webhooks/model"
)

// NotificationService defines an optional interface for sending notifications
// about webhook engine events (delivery failures, exhausted retries, etc.).
//
// Implementations might send emails, Slack messages, SMS, or log to monitoring systems.
type NotificationService interface {
	// NotifyDeliveryFailure is called when a delivery attempt fails but
	// retries remain. This is informational.
	NotifyDeliveryFailure(ctx context.Context, log *model.DeliveryLog, err error) error

	// NotifyDeliveryExhausted is called when a delivery fails permanently
	// after all retry attempts.
	NotifyDeliveryExhausted(ctx context.Context, log *model.DeliveryLog) error

	// NotifySubscriptionCreated is called when a new subscription is created.
	NotifySubscriptionCreated(ctx context.Context, subscription model.Subscription) error

	// NotifySubscriptionDeactivated is called when a subscription is deactivated.
	NotifySubscriptionDeactivated(ctx context.Context, subscription model.Subscription) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
// Use this when notifications are not needed.
type NoOpNotificationService struct{}

// NotifyDeliveryFailure does nothing.
func (n *NoOpNotificationService) NotifyDeliveryFailure(_ context.Context, _ *model.DeliveryLog, _ error) error {
	return nil
}

// NotifyDeliveryExhausted does nothing.
func (n *NoOpNotificationService) NotifyDeliveryExhausted(_ context.Context, _ *model.DeliveryLog) error {
	return nil
}

// NotifySubscriptionCreated does nothing.
func (n *NoOpNotificationService) NotifySubscriptionCreated(_ context.Context, _ model.Subscription) error {
	return nil
}

// NotifySubscriptionDeactivated does nothing.
func (n *NoOpNotificationService) NotifySubscriptionDeactivated(_ context.Context, _ model.Subscription) error {
	return nil
}

// LoggingNotificationService is a simple implementation that logs notifications.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyDeliveryFailure logs a transient delivery failure.
func (n *LoggingNotificationService) NotifyDeliveryFailure(_ context.Context, log *model.DeliveryLog, err error) error {
	n.logger.Warnf("⚠️ Delivery failed: log_id=%d, event_id=%s, subscription_id=%d, attempt=%d/%d, error=%v",
		log.ID, log.EventID, log.SubscriptionID, log.AttemptNumber, log.MaxAttempts, err)
	return nil
}

// NotifyDeliveryExhausted logs a permanent delivery failure.
func (n *LoggingNotificationService) NotifyDeliveryExhausted(_ context.Context, log *model.DeliveryLog) error {
	n.logger.Warnf("⚠️ Delivery exhausted: log_id=%d, event_id=%s, subscription_id=%d, attempts=%d, error=%s",
		log.ID, log.EventID, log.SubscriptionID, log.MaxAttempts, log.ErrorMessage.String)
	return nil
}

// NotifySubscriptionCreated logs subscription creation.
func (n *LoggingNotificationService) NotifySubscriptionCreated(_ context.Context, subscription model.Subscription) error {
	n.logger.Infof("✅ Subscription created: id=%d, subscriber=%s, event_type=%s, url=%s",
		subscription.ID, subscription.SubscriberName, subscription.EventType, subscription.CallbackURL)
	return nil
}

// NotifySubscriptionDeactivated logs subscription deactivation.
func (n *LoggingNotificationService) NotifySubscriptionDeactivated(_ context.Context, subscription model.Subscription) error {
	n.logger.Infof("🔴 Subscription deactivated: id=%d, subscriber=%s",
		subscription.ID, subscription.SubscriberName)
	return nil
}
