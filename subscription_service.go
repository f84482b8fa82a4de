package webhooks

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/coregx/webhooks/model"
	"github.com/coregx/webhooks/signature"
)

// secretBytes is the entropy of a generated webhook secret before encoding.
const secretBytes = 32

// SubscriptionService handles subscription lifecycle management for the
// webhook engine. It provides high-level operations for registering,
// managing, and querying webhook subscriptions.
//
// Key operations:
//   - Create: Register new subscriptions with validation and secret generation
//   - Toggle: Activate or deactivate a subscription
//   - RegenerateSecret: Rotate a subscription's signing secret
//   - TestEndpoint: Send a synthetic signed ping to a callback URL
//
// Secrets are returned exactly once, at creation or rotation; every other
// read path returns the subscription with the secret masked.
//
// Thread safety: Safe for concurrent use.
type SubscriptionService struct {
	subscriptionRepo SubscriptionRepository
	logRepo          DeliveryLogRepository
	client           *http.Client
	logger           Logger
	notifications    NotificationService
}

// SubscriptionServiceOption configures a SubscriptionService.
type SubscriptionServiceOption func(*SubscriptionService) error

// NewSubscriptionService creates a new SubscriptionService with the provided options.
//
// Required options:
//   - WithSubscriptionServiceRepositories: subscription and delivery log repositories
//   - WithSubscriptionServiceLogger: logger instance
//
// Optional options:
//   - WithSubscriptionServiceHTTPClient: custom HTTP client for endpoint tests
//   - WithSubscriptionServiceNotifications: lifecycle notification service
//
// Example:
//
//	service, err := webhooks.NewSubscriptionService(
//	    webhooks.WithSubscriptionServiceRepositories(subRepo, logRepo),
//	    webhooks.WithSubscriptionServiceLogger(logger),
//	)
func NewSubscriptionService(opts ...SubscriptionServiceOption) (*SubscriptionService, error) {
	s := &SubscriptionService{
		notifications: &NoOpNotificationService{},
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply subscription service option", err)
		}
	}

	// Validate required dependencies
	if s.subscriptionRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionRepository is required (use WithSubscriptionServiceRepositories)")
	}
	if s.logRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryLogRepository is required (use WithSubscriptionServiceRepositories)")
	}
	if s.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithSubscriptionServiceLogger)")
	}

	if s.client == nil {
		s.client = &http.Client{Timeout: model.DefaultTimeoutSeconds * time.Second}
	}

	return s, nil
}

// WithSubscriptionServiceRepositories sets the required repository dependencies.
func WithSubscriptionServiceRepositories(
	subscriptionRepo SubscriptionRepository,
	logRepo DeliveryLogRepository,
) SubscriptionServiceOption {
	return func(s *SubscriptionService) error {
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}
		if logRepo == nil {
			return fmt.Errorf("logRepo cannot be nil")
		}
		s.subscriptionRepo = subscriptionRepo
		s.logRepo = logRepo
		return nil
	}
}

// WithSubscriptionServiceLogger sets the logger instance.
func WithSubscriptionServiceLogger(logger Logger) SubscriptionServiceOption {
	return func(s *SubscriptionService) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithSubscriptionServiceHTTPClient sets a custom HTTP client for endpoint tests.
func WithSubscriptionServiceHTTPClient(client *http.Client) SubscriptionServiceOption {
	return func(s *SubscriptionService) error {
		if client == nil {
			return fmt.Errorf("client cannot be nil")
		}
		s.client = client
		return nil
	}
}

// WithSubscriptionServiceNotifications sets an optional notification service
// for subscription lifecycle events.
func WithSubscriptionServiceNotifications(service NotificationService) SubscriptionServiceOption {
	return func(s *SubscriptionService) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		s.notifications = service
		return nil
	}
}

// CreateSubscriptionRequest represents a request to register a new subscription.
type CreateSubscriptionRequest struct {
	SubscriberName     string `json:"subscriberName"`
	SubscriberEmail    string `json:"subscriberEmail"`
	CallbackURL        string `json:"callbackUrl"`
	EventType          string `json:"eventType"`
	Description        string `json:"description"`
	MaxEventsPerMinute int    `json:"maxEventsPerMinute"`
	MaxRetryAttempts   int    `json:"maxRetryAttempts"`
	TimeoutSeconds     int    `json:"timeoutSeconds"`
}

// Validate checks the request fields. Zero values for the numeric tuning
// fields mean "use the default" and pass validation.
func (m CreateSubscriptionRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.SubscriberName, validation.Required, validation.Length(1, 255)),
		validation.Field(&m.SubscriberEmail, validation.Required, is.EmailFormat),
		validation.Field(&m.CallbackURL, validation.Required, validation.Length(3, 2048), validation.By(validateCallbackURL)),
		validation.Field(&m.EventType, validation.Required, validation.By(validateEventType)),
		validation.Field(&m.Description, validation.Length(0, 1024)),
		validation.Field(&m.MaxEventsPerMinute, validation.Min(0), validation.Max(1000)),
		validation.Field(&m.MaxRetryAttempts, validation.Min(0), validation.Max(10)),
		validation.Field(&m.TimeoutSeconds, validation.By(validateTimeoutSeconds)),
	)
}

// validateCallbackURL accepts absolute http:// and https:// URLs.
// Both schemes pass identically; https is recommended but not required.
func validateCallbackURL(value any) error {
	raw, _ := value.(string)
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}

// validateEventType accepts known event types and the wildcard "*".
func validateEventType(value any) error {
	raw, _ := value.(string)
	if _, err := model.ParseEventType(raw); err != nil {
		return fmt.Errorf("unknown event type %q", raw)
	}
	return nil
}

// validateTimeoutSeconds accepts 0 (use default) or a value inside the
// supported window.
func validateTimeoutSeconds(value any) error {
	v, _ := value.(int)
	if v == 0 {
		return nil
	}
	if v < model.MinTimeoutSeconds || v > model.MaxTimeoutSeconds {
		return fmt.Errorf("must be between %d and %d seconds", model.MinTimeoutSeconds, model.MaxTimeoutSeconds)
	}
	return nil
}

// CreateSubscriptionResult carries the registered subscription together with
// the plaintext secret. The secret is available here and nowhere else.
type CreateSubscriptionResult struct {
	Subscription model.Subscription `json:"subscription"`
	Secret       string             `json:"secret"`
}

// Create registers a new webhook subscription.
//
// A cryptographically random signing secret is generated and returned in the
// result; it is never returned by any later read. Registering a second
// subscription for the same (subscriber email, callback URL) pair is
// rejected with DUPLICATE_SUBSCRIPTION.
func (s *SubscriptionService) Create(ctx context.Context, req CreateSubscriptionRequest) (*CreateSubscriptionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid subscription request", err)
	}

	eventType, err := model.ParseEventType(req.EventType)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid event type", err)
	}

	// Reject duplicates for the same email and URL pair
	_, err = s.subscriptionRepo.FindByEmailAndURL(ctx, req.SubscriberEmail, req.CallbackURL)
	if err == nil {
		return nil, NewError(ErrCodeDuplicate,
			fmt.Sprintf("subscription already exists for %s at %s", req.SubscriberEmail, req.CallbackURL))
	}
	if !IsNoData(err) {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to check existing subscriptions", err)
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to generate secret", err)
	}

	sub := model.NewSubscription(req.SubscriberName, req.SubscriberEmail, req.CallbackURL, eventType, secret)
	sub.Description = req.Description
	if req.MaxEventsPerMinute > 0 {
		sub.MaxEventsPerMinute = req.MaxEventsPerMinute
	}
	if req.MaxRetryAttempts > 0 {
		sub.MaxRetryAttempts = req.MaxRetryAttempts
	}
	if req.TimeoutSeconds > 0 {
		sub.TimeoutSeconds = req.TimeoutSeconds
	}

	sub, err = s.subscriptionRepo.Save(ctx, sub)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save subscription", err)
	}

	s.logger.Infof("Subscription created: id=%d, subscriber=%s, event_type=%s, url=%s",
		sub.ID, sub.SubscriberName, sub.EventType, sub.CallbackURL)

	if err := s.notifications.NotifySubscriptionCreated(ctx, sub); err != nil {
		s.logger.Warnf("Failed to send subscription created notification: %v", err)
	}

	return &CreateSubscriptionResult{
		Subscription: sub.Masked(),
		Secret:       secret,
	}, nil
}

// Get retrieves a single subscription by ID with the secret masked.
func (s *SubscriptionService) Get(ctx context.Context, id int64) (*model.Subscription, error) {
	if id == 0 {
		return nil, NewError(ErrCodeValidation, "subscription ID is required")
	}

	sub, err := s.subscriptionRepo.Load(ctx, id)
	if err != nil {
		if IsNoData(err) {
			return nil, NewErrorWithCause(ErrCodeNotFound, fmt.Sprintf("subscription not found: %d", id), err)
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load subscription", err)
	}

	masked := sub.Masked()
	return &masked, nil
}

// List retrieves subscriptions matching the filter with secrets masked.
// Returns empty slice if no subscriptions found (not an error).
func (s *SubscriptionService) List(ctx context.Context, filter Filter) ([]model.Subscription, error) {
	subs, err := s.subscriptionRepo.List(ctx, filter)
	if err != nil {
		if IsNoData(err) {
			return []model.Subscription{}, nil
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to list subscriptions", err)
	}

	masked := make([]model.Subscription, 0, len(subs))
	for _, sub := range subs {
		masked = append(masked, sub.Masked())
	}
	return masked, nil
}

// Toggle activates or deactivates a subscription. Toggling to the current
// state is a no-op, not an error.
func (s *SubscriptionService) Toggle(ctx context.Context, id int64, active bool) (*model.Subscription, error) {
	if id == 0 {
		return nil, NewError(ErrCodeValidation, "subscription ID is required")
	}

	sub, err := s.subscriptionRepo.Load(ctx, id)
	if err != nil {
		if IsNoData(err) {
			return nil, NewErrorWithCause(ErrCodeNotFound, fmt.Sprintf("subscription not found: %d", id), err)
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load subscription", err)
	}

	if sub.Active == active {
		s.logger.Warnf("Subscription %d already active=%v", id, active)
		masked := sub.Masked()
		return &masked, nil
	}

	sub.Active = active
	sub, err = s.subscriptionRepo.Save(ctx, sub)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save subscription", err)
	}

	if active {
		s.logger.Infof("Subscription activated: id=%d", id)
	} else {
		s.logger.Infof("Subscription deactivated: id=%d", id)
		if err := s.notifications.NotifySubscriptionDeactivated(ctx, sub); err != nil {
			s.logger.Warnf("Failed to send subscription deactivated notification: %v", err)
		}
	}

	masked := sub.Masked()
	return &masked, nil
}

// RegenerateSecretResult carries the rotated plaintext secret.
// Like creation, the secret is available here exactly once.
type RegenerateSecretResult struct {
	Subscription model.Subscription `json:"subscription"`
	Secret       string             `json:"secret"`
}

// RegenerateSecret rotates a subscription's signing secret.
// Deliveries attempted after the rotation are signed with the new secret.
func (s *SubscriptionService) RegenerateSecret(ctx context.Context, id int64) (*RegenerateSecretResult, error) {
	if id == 0 {
		return nil, NewError(ErrCodeValidation, "subscription ID is required")
	}

	sub, err := s.subscriptionRepo.Load(ctx, id)
	if err != nil {
		if IsNoData(err) {
			return nil, NewErrorWithCause(ErrCodeNotFound, fmt.Sprintf("subscription not found: %d", id), err)
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load subscription", err)
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to generate secret", err)
	}

	sub.Secret = secret
	sub, err = s.subscriptionRepo.Save(ctx, sub)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save subscription", err)
	}

	s.logger.Infof("Subscription secret rotated: id=%d", id)

	return &RegenerateSecretResult{
		Subscription: sub.Masked(),
		Secret:       secret,
	}, nil
}

// Delete permanently removes a subscription. Delivery logs for the
// subscription are kept for auditing until the retention sweeper purges them.
func (s *SubscriptionService) Delete(ctx context.Context, id int64) error {
	if id == 0 {
		return NewError(ErrCodeValidation, "subscription ID is required")
	}

	sub, err := s.subscriptionRepo.Load(ctx, id)
	if err != nil {
		if IsNoData(err) {
			return NewErrorWithCause(ErrCodeNotFound, fmt.Sprintf("subscription not found: %d", id), err)
		}
		return NewErrorWithCause(ErrCodeDatabase, "failed to load subscription", err)
	}

	if err := s.subscriptionRepo.Delete(ctx, sub); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to delete subscription", err)
	}

	s.logger.Infof("Subscription deleted: id=%d, subscriber=%s", id, sub.SubscriberName)
	return nil
}

// DeliveryHistory retrieves recent delivery logs for a subscription,
// newest first. Returns empty slice if no logs found.
func (s *SubscriptionService) DeliveryHistory(ctx context.Context, id int64, limit int) ([]model.DeliveryLog, error) {
	if id == 0 {
		return nil, NewError(ErrCodeValidation, "subscription ID is required")
	}
	if limit <= 0 {
		limit = 50
	}

	logs, err := s.logRepo.FindBySubscription(ctx, id, limit)
	if err != nil {
		if IsNoData(err) {
			return []model.DeliveryLog{}, nil
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load delivery logs", err)
	}

	return logs, nil
}

// TestEndpointRequest represents a request to test a callback endpoint
// before registering it.
type TestEndpointRequest struct {
	CallbackURL string `json:"callbackUrl"`
	Secret      string `json:"secret"` // optional, generated when empty
}

// Validate checks the request fields.
func (m TestEndpointRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.CallbackURL, validation.Required, validation.Length(3, 2048), validation.By(validateCallbackURL)),
	)
}

// TestEndpointResult represents the outcome of a synthetic test delivery.
// The signature and secret are echoed back so the receiver's verification
// code can be checked against them.
type TestEndpointResult struct {
	Success      bool   `json:"success"`
	StatusCode   int    `json:"statusCode"`
	ResponseBody string `json:"responseBody"`
	DurationMs   int64  `json:"durationMs"`
	Signature    string `json:"signature"`
	Secret       string `json:"secret"`
	Error        string `json:"error,omitempty"`
}

// testPing is the synthetic payload sent by TestEndpoint.
type testPing struct {
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// TestEndpoint sends a signed synthetic ping to a callback URL without
// creating a subscription or a delivery log. When no secret is supplied a
// throwaway one is generated and returned so the receiver can verify the
// signature. A non-2xx response or transport error yields Success=false, not
// an error return.
func (s *SubscriptionService) TestEndpoint(ctx context.Context, req TestEndpointRequest) (*TestEndpointResult, error) {
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid test request", err)
	}

	secret := req.Secret
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to generate secret", err)
		}
		secret = generated
	}

	now := time.Now()
	ping := testPing{
		EventType: "test.ping",
		Timestamp: now.UTC(),
		Message:   "Webhook endpoint test",
	}

	payload, err := json.Marshal(ping)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeSerialization, "failed to encode test payload", err)
	}

	sig := signature.Sign(payload, secret, now.Unix())

	result := &TestEndpointResult{
		Signature: sig,
		Secret:    secret,
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.CallbackURL, bytes.NewReader(payload))
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "failed to build test request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", UserAgent)
	httpReq.Header.Set(HeaderSignature, sig)
	httpReq.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", now.Unix()))
	httpReq.Header.Set(HeaderEventType, "test.ping")

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	result.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		s.logger.Warnf("Endpoint test failed for %s: %v", req.CallbackURL, err)
		return result, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))

	result.StatusCode = resp.StatusCode
	result.ResponseBody = string(body)
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300

	s.logger.Infof("Endpoint test for %s: status=%d, success=%v, duration=%dms",
		req.CallbackURL, result.StatusCode, result.Success, result.DurationMs)

	return result, nil
}

// generateSecret returns a fresh base64-encoded signing secret with
// secretBytes bytes of entropy.
func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
