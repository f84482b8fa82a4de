// Package api provides HTTP handlers for the webhook server REST API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coregx/webhooks"
	"github.com/coregx/webhooks/model"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	dispatcher    *webhooks.Dispatcher
	subscriptions *webhooks.SubscriptionService
	logger        webhooks.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	dispatcher *webhooks.Dispatcher,
	subscriptions *webhooks.SubscriptionService,
	logger webhooks.Logger,
) *Handler {
	return &Handler{
		dispatcher:    dispatcher,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// NotifyRequest represents an event emission request.
type NotifyRequest struct {
	EventType string         `json:"eventType"`
	Data      map[string]any `json:"data"`
}

// ToggleRequest represents a subscription activation request.
type ToggleRequest struct {
	Active bool `json:"active"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// HandleNotify handles POST /api/v1/notify
func (h *Handler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	if req.EventType == "" {
		h.respondError(w, http.StatusBadRequest, "eventType is required", "VALIDATION_ERROR")
		return
	}

	result, err := h.dispatcher.Notify(r.Context(), model.EventType(req.EventType), req.Data)
	if err != nil {
		h.respondServiceError(w, err, "Failed to dispatch event", "NOTIFY_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusAccepted, result, "Event dispatched")
}

// HandleSubscriptions handles /api/v1/subscriptions
//
//	POST: register a new subscription
//	GET:  list subscriptions
func (h *Handler) HandleSubscriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createSubscription(w, r)
	case http.MethodGet:
		h.listSubscriptions(w, r)
	default:
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	}
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req webhooks.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	result, err := h.subscriptions.Create(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err, "Failed to create subscription", "SUBSCRIBE_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusCreated, result, "Subscription created, store the secret now: it will not be shown again")
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := webhooks.Filter{
		EventType:  q.Get("eventType"),
		Email:      q.Get("email"),
		ActiveOnly: q.Get("active") == "true",
	}
	if pageSize, err := strconv.Atoi(q.Get("pageSize")); err == nil {
		filter.PageSize = pageSize
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filter.Page = page
	}

	subs, err := h.subscriptions.List(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, err, "Failed to list subscriptions", "LIST_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, subs, "")
}

// HandleSubscriptionByID handles /api/v1/subscriptions/{id} and its sub-resources:
//
//	GET    /api/v1/subscriptions/{id}
//	DELETE /api/v1/subscriptions/{id}
//	POST   /api/v1/subscriptions/{id}/toggle
//	POST   /api/v1/subscriptions/{id}/regenerate-secret
//	GET    /api/v1/subscriptions/{id}/logs
//	POST   /api/v1/subscriptions/test
func (h *Handler) HandleSubscriptionByID(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	// parts: ["api", "v1", "subscriptions", "{id}", ...]
	if len(parts) < 4 {
		h.respondError(w, http.StatusBadRequest, "Invalid subscription path", "INVALID_ID")
		return
	}

	if parts[3] == "test" {
		h.testEndpoint(w, r)
		return
	}

	id, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid subscription ID", "INVALID_ID")
		return
	}

	if len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			h.getSubscription(w, r, id)
		case http.MethodDelete:
			h.deleteSubscription(w, r, id)
		default:
			h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		}
		return
	}

	switch parts[4] {
	case "toggle":
		h.toggleSubscription(w, r, id)
	case "regenerate-secret":
		h.regenerateSecret(w, r, id)
	case "logs":
		h.deliveryLogs(w, r, id)
	default:
		h.respondError(w, http.StatusNotFound, "Unknown subscription resource", "NOT_FOUND")
	}
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request, id int64) {
	sub, err := h.subscriptions.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, "Failed to load subscription", "GET_ERROR")
		return
	}
	h.respondSuccess(w, http.StatusOK, sub, "")
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request, id int64) {
	if err := h.subscriptions.Delete(r.Context(), id); err != nil {
		h.respondServiceError(w, err, "Failed to delete subscription", "DELETE_ERROR")
		return
	}
	h.respondSuccess(w, http.StatusOK, nil, "Subscription deleted")
}

func (h *Handler) toggleSubscription(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	sub, err := h.subscriptions.Toggle(r.Context(), id, req.Active)
	if err != nil {
		h.respondServiceError(w, err, "Failed to toggle subscription", "TOGGLE_ERROR")
		return
	}
	h.respondSuccess(w, http.StatusOK, sub, "")
}

func (h *Handler) regenerateSecret(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	result, err := h.subscriptions.RegenerateSecret(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, "Failed to regenerate secret", "REGENERATE_ERROR")
		return
	}
	h.respondSuccess(w, http.StatusOK, result, "Secret rotated, store it now: it will not be shown again")
}

func (h *Handler) deliveryLogs(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.subscriptions.DeliveryHistory(r.Context(), id, limit)
	if err != nil {
		h.respondServiceError(w, err, "Failed to load delivery logs", "LOGS_ERROR")
		return
	}
	h.respondSuccess(w, http.StatusOK, logs, "")
}

func (h *Handler) testEndpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req webhooks.TestEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	result, err := h.subscriptions.TestEndpoint(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err, "Failed to test endpoint", "TEST_ERROR")
		return
	}
	h.respondSuccess(w, http.StatusOK, result, "")
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}

	h.respondSuccess(w, http.StatusOK, health, "")
}

// respondServiceError maps service error codes to HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, fallbackMsg, fallbackCode string) {
	var whErr *webhooks.Error
	if errors.As(err, &whErr) {
		switch whErr.Code {
		case webhooks.ErrCodeValidation:
			h.respondError(w, http.StatusBadRequest, whErr.Message, whErr.Code)
			return
		case webhooks.ErrCodeDuplicate:
			h.respondError(w, http.StatusConflict, whErr.Message, whErr.Code)
			return
		case webhooks.ErrCodeNotFound:
			h.respondError(w, http.StatusNotFound, whErr.Message, whErr.Code)
			return
		}
	}

	h.logger.Errorf("%s: %v", fallbackMsg, err)
	h.respondError(w, http.StatusInternalServerError, fallbackMsg, fallbackCode)
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// splitPath splits URL path into non-empty segments.
func splitPath(path string) []string {
	parts := []string{}
	current := ""
	for _, c := range path {
		if c == '/' {
			if current != "" {
				parts = append(parts, current)
			}
			current = ""
			continue
		}
		current += string(c)
	}
	if current != "" {
		parts = append(parts, current)
	}
	return parts
}
