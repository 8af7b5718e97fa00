package types

import (
	"encoding/json"
	"time"
)

// Event names exchanged over the realtime channel.
const (
	EventNewMessage  = "new-message"
	EventError       = "error"
	EventSendMessage = "send-message"
	EventAck         = "ack"
)

// Frame is the envelope for every realtime message in both directions.
// Ack carries a correlation ID when the sender expects (or the server
// delivers) an acknowledgment.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   string          `json:"ack,omitempty"`
}

// Event is the decoded form of an inbound frame payload.
type Event interface {
	event()
}

// ServerMessage is the wire shape of a chat message as the backend emits
// it, both in history responses and in new-message push events. The
// student's email is always present and identifies the conversation; the
// instructor's phone number is present when an instructor is involved.
type ServerMessage struct {
	ID              string    `json:"id,omitempty"`
	SenderType      Role      `json:"senderType"`
	StudentEmail    string    `json:"studentEmail"`
	InstructorPhone string    `json:"instructorPhone,omitempty"`
	FromName        string    `json:"fromName,omitempty"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
}

// SenderKey returns the identity key of whoever sent the message.
func (m ServerMessage) SenderKey() string {
	if m.SenderType == RoleInstructor {
		return m.InstructorPhone
	}
	return m.StudentEmail
}

// CounterpartKey returns the conversation key from the viewer's side:
// the student's email for an instructor viewer, the instructor's phone
// for a student viewer.
func (m ServerMessage) CounterpartKey(viewer Role) string {
	if viewer == RoleInstructor {
		return m.StudentEmail
	}
	return m.InstructorPhone
}

// Validate rejects push payloads that do not carry the fields required
// to attribute and route the message.
func (m ServerMessage) Validate() error {
	if !m.SenderType.Valid() {
		return ErrInvalidRole
	}
	if m.StudentEmail == "" {
		return ErrMalformedEvent
	}
	if m.Message == "" {
		return ErrEmptyMessage
	}
	return nil
}

// NewMessageEvent is a decoded new-message push event.
type NewMessageEvent struct {
	ServerMessage
}

// ErrorEvent is a decoded error push event.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (NewMessageEvent) event() {}
func (ErrorEvent) event()      {}

// DecodeEvent turns an inbound frame into its typed event. Unknown event
// names and malformed payloads are rejected rather than passed through.
func DecodeEvent(f Frame) (Event, error) {
	switch f.Event {
	case EventNewMessage:
		var ev NewMessageEvent
		if err := json.Unmarshal(f.Data, &ev.ServerMessage); err != nil {
			return nil, ErrMalformedEvent
		}
		if err := ev.Validate(); err != nil {
			return nil, err
		}
		return ev, nil
	case EventError:
		var ev ErrorEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return nil, ErrMalformedEvent
		}
		return ev, nil
	default:
		return nil, ErrUnknownEvent
	}
}

// SendMessage is the outbound send-message payload. Exactly one recipient
// key must be set: email when the recipient is a student, phone number
// when the recipient is an instructor.
type SendMessage struct {
	Message        string `json:"message"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	RecipientPhone string `json:"recipientPhone,omitempty"`
}

// Validate enforces the non-empty body and mutually exclusive recipient
// key invariants.
func (m SendMessage) Validate() error {
	if m.Message == "" {
		return ErrEmptyMessage
	}
	switch {
	case m.RecipientEmail == "" && m.RecipientPhone == "":
		return ErrMissingRecipient
	case m.RecipientEmail != "" && m.RecipientPhone != "":
		return ErrAmbiguousRecipient
	}
	return nil
}

// Ack is the payload the server returns for an acknowledged emit. A
// non-empty Error means the send failed on the server side.
type Ack struct {
	Error string `json:"error,omitempty"`
}
