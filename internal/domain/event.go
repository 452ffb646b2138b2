package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies one push-channel message shape.
// Params: constants for the three defined event types.
// Returns: type discriminator clients switch on; unknown types must be ignored.
type EventType string

const (
	// EventConnected confirms channel establishment; it carries no count.
	EventConnected EventType = "CONNECTED"
	// EventNewAlert announces a freshly created alert with the new active count.
	EventNewAlert EventType = "NEW_ALERT"
	// EventAlertAcknowledged announces an acknowledgment with the new active count.
	EventAlertAcknowledged EventType = "ALERT_ACKNOWLEDGED"
)

// Event is one structured push-channel message. Count is a pointer so the
// CONNECTED confirmation omits it while count updates serialize count=0.
// Params: event type, optional active count, and optional server timestamp.
// Returns: JSON-shaped payload broadcast to every connected client.
type Event struct {
	Type      EventType  `json:"type"`
	Message   string     `json:"message,omitempty"`
	Count     *int       `json:"count,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ConnectedEvent builds the one-shot channel confirmation.
// Params: none.
// Returns: CONNECTED event without count.
func ConnectedEvent() Event {
	return Event{Type: EventConnected, Message: "push channel established"}
}

// CountEvent builds one active-count delta event.
// Params: event type, authoritative active count, and broadcast time.
// Returns: count-carrying event payload.
func CountEvent(eventType EventType, count int, at time.Time) Event {
	return Event{Type: eventType, Count: &count, Timestamp: &at}
}

// Encode serializes the event for transport.
// Params: none.
// Returns: JSON bytes or encode error.
func (e Event) Encode() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return body, nil
}

// DecodeEvent decodes one push-channel message on the client side.
// Params: JSON document bytes.
// Returns: decoded event or decode error. Unknown event types decode fine and
// are left for the caller to ignore.
func DecodeEvent(raw []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}

// AckFlag decodes the acknowledged field of the pull-fallback alert list,
// which historically arrives either as a JSON bool or as 0/1.
// Params: raw JSON scalar.
// Returns: normalized bool value.
type AckFlag bool

// UnmarshalJSON accepts true/false and 0/1 spellings of the ack flag.
// Params: raw JSON value.
// Returns: conversion error for unsupported encodings.
func (f *AckFlag) UnmarshalJSON(raw []byte) error {
	switch string(raw) {
	case "true", "1":
		*f = true
		return nil
	case "false", "0":
		*f = false
		return nil
	default:
		return fmt.Errorf("unsupported acknowledged value %q", string(raw))
	}
}
