package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidEvent is returned when an event fails boundary validation
// (unknown type, missing identifiers, or a malformed payload for its type).
var ErrInvalidEvent = errors.New("invalid event")

type EventType string

const (
	EventEditNote   EventType = "editNote"
	EventPostMsg    EventType = "postMsg"
	EventEditMsg    EventType = "editMsg"
	EventCheckMsg   EventType = "checkMsg"
	EventUncheckMsg EventType = "uncheckMsg"
	EventDeleteMsg  EventType = "deleteMsg"
)

// Event is an immutable record of one user action, the unit of replication.
// EmittedAt is the device-assigned timestamp (Unix ms) and orders replay;
// ReceivedAt is assigned by the server on ingestion and acts as the sync
// watermark cursor.
type Event struct {
	ID         string          `json:"id"`
	ItemID     string          `json:"itemId"`
	EmittedAt  int64           `json:"emittedAt"`
	Type       EventType       `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt int64           `json:"receivedAt,omitempty"`
	AccountID  uuid.UUID       `json:"-"`
}

type Tag struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// NotePayload is the data carried by an editNote event.
type NotePayload struct {
	Text string `json:"text"`
}

// MessagePayload is the data carried by a postMsg event.
type MessagePayload struct {
	Text    string `json:"text"`
	Tag     *Tag   `json:"tag,omitempty"`
	Checked bool   `json:"checked,omitempty"`
}

// MessageEdit is the data carried by an editMsg event. Nil fields are
// left untouched when merged into the materialized message.
type MessageEdit struct {
	Text *string `json:"text,omitempty"`
	Tag  *Tag    `json:"tag,omitempty"`
}

// Validate checks the event against the closed type enum and decodes the
// payload once for its variant. Events are validated at the system boundary
// so downstream code can assume a well-formed payload.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.ItemID == "" {
		return fmt.Errorf("%w: missing itemId", ErrInvalidEvent)
	}
	if e.EmittedAt <= 0 {
		return fmt.Errorf("%w: missing emittedAt", ErrInvalidEvent)
	}

	switch e.Type {
	case EventEditNote:
		var p NotePayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return fmt.Errorf("%w: bad editNote payload: %v", ErrInvalidEvent, err)
		}
	case EventPostMsg:
		var p MessagePayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return fmt.Errorf("%w: bad postMsg payload: %v", ErrInvalidEvent, err)
		}
	case EventEditMsg:
		var p MessageEdit
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return fmt.Errorf("%w: bad editMsg payload: %v", ErrInvalidEvent, err)
		}
	case EventCheckMsg, EventUncheckMsg, EventDeleteMsg:
		// No payload required.
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}

	return nil
}

// NotePayload decodes the event data as an editNote payload.
func (e *Event) NotePayload() (NotePayload, error) {
	var p NotePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return NotePayload{}, fmt.Errorf("%w: bad editNote payload: %v", ErrInvalidEvent, err)
	}
	return p, nil
}

// MessagePayload decodes the event data as a postMsg payload.
func (e *Event) MessagePayload() (MessagePayload, error) {
	var p MessagePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return MessagePayload{}, fmt.Errorf("%w: bad postMsg payload: %v", ErrInvalidEvent, err)
	}
	return p, nil
}

// MessageEdit decodes the event data as an editMsg payload.
func (e *Event) MessageEdit() (MessageEdit, error) {
	var p MessageEdit
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return MessageEdit{}, fmt.Errorf("%w: bad editMsg payload: %v", ErrInvalidEvent, err)
	}
	return p, nil
}
