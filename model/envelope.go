package model

import (
	"encoding/json"
	"time"
)

// APIVersion is the envelope schema version sent to subscribers.
const APIVersion = "v1"

// Envelope is the JSON structure POSTed to a subscriber's callback URL.
// It is built once per logical (subscription, event) pair and its serialized
// bytes are cached on the delivery log so retries resend byte-identical content.
type Envelope struct {
	EventID    string           `json:"eventId"`
	EventType  EventType        `json:"eventType"`
	Timestamp  time.Time        `json:"timestamp"`
	APIVersion string           `json:"apiVersion"`
	Data       any              `json:"data"`
	Metadata   EnvelopeMetadata `json:"metadata"`
}

// EnvelopeMetadata carries delivery context alongside the domain payload.
type EnvelopeMetadata struct {
	SubscriptionID int64  `json:"subscriptionId"`
	Attempt        int    `json:"attempt"`
	Environment    string `json:"environment"`
}

// NewEnvelope builds an envelope for one logical event dispatch.
func NewEnvelope(eventID string, eventType EventType, data any, subscriptionID int64, environment string) Envelope {
	return Envelope{
		EventID:    eventID,
		EventType:  eventType,
		Timestamp:  time.Now().UTC(),
		APIVersion: APIVersion,
		Data:       data,
		Metadata: EnvelopeMetadata{
			SubscriptionID: subscriptionID,
			Attempt:        1,
			Environment:    environment,
		},
	}
}

// Marshal serializes the envelope to its canonical JSON form.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
