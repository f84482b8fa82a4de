// Package model contains all domain models and data structures for the webhook engine.
package model

import "fmt"

// tablePrefix is prepended to every table name. Keep in sync with the
// adapter constructors, which accept a custom prefix.
const tablePrefix = "webhook_"

// EventType identifies a domain event subscribers can register for.
//
// The vocabulary is a closed set: an entity-lifecycle triple
// (created/updated/deleted) for each domain entity, plus the wildcard
// EventTypeAll which matches every event.
type EventType string

const (
	// Candidate events
	EventCandidateCreated EventType = "candidate.created"
	EventCandidateUpdated EventType = "candidate.updated"
	EventCandidateDeleted EventType = "candidate.deleted"

	// Consultant events
	EventConsultantCreated EventType = "consultant.created"
	EventConsultantUpdated EventType = "consultant.updated"
	EventConsultantDeleted EventType = "consultant.deleted"

	// Job order events
	EventJobOrderCreated EventType = "joborder.created"
	EventJobOrderUpdated EventType = "joborder.updated"
	EventJobOrderDeleted EventType = "joborder.deleted"

	// Job submission events
	EventJobSubmissionCreated EventType = "jobsubmission.created"
	EventJobSubmissionUpdated EventType = "jobsubmission.updated"
	EventJobSubmissionDeleted EventType = "jobsubmission.deleted"

	// EventTypeAll is the wildcard: a subscription with this event type
	// receives every emitted event.
	EventTypeAll EventType = "*"
)

// eventTypes is the set of valid event type values.
var eventTypes = map[EventType]struct{}{
	EventCandidateCreated:     {},
	EventCandidateUpdated:     {},
	EventCandidateDeleted:     {},
	EventConsultantCreated:    {},
	EventConsultantUpdated:    {},
	EventConsultantDeleted:    {},
	EventJobOrderCreated:      {},
	EventJobOrderUpdated:      {},
	EventJobOrderDeleted:      {},
	EventJobSubmissionCreated: {},
	EventJobSubmissionUpdated: {},
	EventJobSubmissionDeleted: {},
	EventTypeAll:              {},
}

// ParseEventType converts a string into an EventType.
// Returns an error for values outside the known vocabulary.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if _, ok := eventTypes[t]; !ok {
		return "", fmt.Errorf("unknown event type: %q", s)
	}
	return t, nil
}

// IsValid reports whether the event type belongs to the known vocabulary.
func (t EventType) IsValid() bool {
	_, ok := eventTypes[t]
	return ok
}

// IsWildcard reports whether the event type is the wildcard.
func (t EventType) IsWildcard() bool {
	return t == EventTypeAll
}

// Matches reports whether a subscription with this event type should receive
// an event of the given type. A concrete type matches itself; the wildcard
// matches everything.
func (t EventType) Matches(emitted EventType) bool {
	return t == emitted || t == EventTypeAll
}

// String returns the wire value of the event type.
func (t EventType) String() string {
	return string(t)
}
