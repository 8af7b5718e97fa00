package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"classboard/internal/realtime"
	"classboard/pkg/types"
)

// HistorySource fetches past messages for a conversation.
type HistorySource interface {
	History(ctx context.Context, contact types.Contact) ([]types.ServerMessage, error)
}

// TokenSource yields the bearer token used for send-time reconnects.
type TokenSource interface {
	Token() (string, error)
}

// Connection is the injected realtime resource. realtime.Manager
// satisfies it; tests substitute a fake.
type Connection interface {
	Connect(ctx context.Context, token string) (*realtime.Channel, error)
	IsConnected() bool
	Emit(event string, payload any, ack func(types.Ack)) error
	On(event string, h realtime.Handler) uint64
}

// Timeline is the ordered message list for the selected contact. It is
// fed by a history fetch on selection and by live push events, and it
// owns the send-time reconnect policy: one Connect attempt, one retry,
// then give up and surface the error.
type Timeline struct {
	role    types.Role
	history HistorySource
	conn    Connection
	tokens  TokenSource
	notify  func(error)

	mu       sync.Mutex
	selected *types.Contact
	seq      uint64
	messages []types.Message
}

// NewTimeline creates an empty timeline for a session with the given
// role. notify receives non-fatal, user-visible errors (send failures,
// backend chat errors); nil falls back to logging.
func NewTimeline(role types.Role, history HistorySource, conn Connection, tokens TokenSource, notify func(error)) *Timeline {
	return &Timeline{
		role:    role,
		history: history,
		conn:    conn,
		tokens:  tokens,
		notify:  notify,
	}
}

// Subscribe registers the timeline's push listeners on the current
// channel instance. Listeners die with the channel, so this runs after
// every successful connect.
func (t *Timeline) Subscribe() {
	t.conn.On(types.EventNewMessage, t.handlePush)
	t.conn.On(types.EventError, t.handleErrorEvent)
}

// Select switches the conversation to contact and fetches its history.
// Responses are last-fetch-wins: if the selection changed while the
// fetch was in flight, the late response is discarded.
func (t *Timeline) Select(ctx context.Context, contact types.Contact) error {
	t.mu.Lock()
	t.seq++
	seq := t.seq
	selected := contact
	t.selected = &selected
	t.mu.Unlock()

	history, err := t.history.History(ctx, contact)

	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.seq {
		// a newer selection superseded this fetch
		return nil
	}
	if err != nil {
		t.messages = nil
		return fmt.Errorf("failed to load chat history: %w", err)
	}

	messages := make([]types.Message, 0, len(history))
	for _, msg := range history {
		messages = append(messages, t.normalize(msg))
	}
	t.messages = messages
	return nil
}

// Selected returns the current conversation contact, or nil.
func (t *Timeline) Selected() *types.Contact {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.selected == nil {
		return nil
	}
	contact := *t.selected
	return &contact
}

// Messages returns the timeline in arrival order.
func (t *Timeline) Messages() []types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Send trims and sends the message body to the selected contact. An
// empty body or missing selection is a silent no-op. If the channel is
// down, exactly one reconnect is attempted before the single retry;
// a failed reconnect abandons the send and reports it.
func (t *Timeline) Send(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	t.mu.Lock()
	selected := t.selected
	t.mu.Unlock()
	if selected == nil {
		return nil
	}

	payload := types.SendMessage{Message: body}
	if selected.Role == types.RoleInstructor {
		payload.RecipientPhone = selected.PhoneNumber
	} else {
		payload.RecipientEmail = selected.Email
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	err := t.emit(payload)
	if !errors.Is(err, realtime.ErrNotConnected) {
		return err
	}

	tok, err := t.tokens.Token()
	if err != nil || tok == "" {
		return ErrNoSession
	}
	if _, err := t.conn.Connect(ctx, tok); err != nil {
		return fmt.Errorf("%w: %v", ErrReconnectFailed, err)
	}
	// fresh channel instance: listeners must be re-registered
	t.Subscribe()

	return t.emit(payload)
}

func (t *Timeline) emit(payload types.SendMessage) error {
	return t.conn.Emit(types.EventSendMessage, payload, func(ack types.Ack) {
		if ack.Error != "" {
			t.report(fmt.Errorf("%w: %s", ErrSendFailed, ack.Error))
		}
	})
}

// handlePush appends a live message, but only when it belongs to the
// selected conversation; events for other conversations are dropped
// instead of leaking into the rendered timeline.
func (t *Timeline) handlePush(data json.RawMessage) {
	var msg types.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if err := msg.Validate(); err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.selected == nil || msg.CounterpartKey(t.role) != t.selected.Key() {
		return
	}
	t.messages = append(t.messages, t.normalize(msg))
}

func (t *Timeline) handleErrorEvent(data json.RawMessage) {
	var ev types.ErrorEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	t.report(fmt.Errorf("%w: %s", ErrChat, ev.Message))
}

// normalize maps a wire message into the timeline shape, deriving the
// direction flag from the sender's role versus the session's own role.
func (t *Timeline) normalize(msg types.ServerMessage) types.Message {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}

	name := msg.FromName
	if name == "" {
		if msg.SenderType == types.RoleInstructor {
			name = "Instructor"
		} else {
			name = msg.StudentEmail
		}
	}

	return types.Message{
		ID:         id,
		SenderKey:  msg.SenderKey(),
		SenderName: name,
		Body:       msg.Message,
		SentAt:     msg.Timestamp,
		Own:        msg.SenderType == t.role,
	}
}

func (t *Timeline) report(err error) {
	if t.notify != nil {
		t.notify(err)
		return
	}
	log.Printf("chat: %v", err)
}
