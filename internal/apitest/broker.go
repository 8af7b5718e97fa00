package apitest

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"classboard/pkg/types"
)

var upgrader = gws.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsClient serializes writes to one connection; the reader goroutine
// and a peer's relay can both target it.
type wsClient struct {
	mu   sync.Mutex
	conn *gws.Conn
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// handleSocket authenticates the handshake, registers the connection
// under the caller's identity key, then relays send-message frames:
// each one is acked, stored in history, and pushed as new-message to
// both sides of the conversation.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")

	s.mu.Lock()
	sess, found := s.sessions[tok]
	s.mu.Unlock()
	if !found {
		http.Error(w, "unknown token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &wsClient{conn: conn}

	key := sess.email
	if sess.role == types.RoleInstructor {
		key = sess.phone
	}

	s.mu.Lock()
	s.conns[key] = client
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.conns[key] == client {
			delete(s.conns, key)
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var frame types.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Event != types.EventSendMessage {
			continue
		}
		s.relay(client, sess, frame)
	}
}

func (s *Server) relay(client *wsClient, sess session, frame types.Frame) {
	var payload types.SendMessage
	ackErr := ""
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		ackErr = "malformed payload"
	} else if err := payload.Validate(); err != nil {
		ackErr = err.Error()
	}

	if frame.Ack != "" {
		data, _ := json.Marshal(types.Ack{Error: ackErr})
		_ = client.writeJSON(types.Frame{Event: types.EventAck, Data: data, Ack: frame.Ack})
	}
	if ackErr != "" {
		return
	}

	msg := types.ServerMessage{
		SenderType: sess.role,
		FromName:   sess.name,
		Message:    payload.Message,
		Timestamp:  time.Now().UTC(),
	}
	if sess.role == types.RoleInstructor {
		msg.InstructorPhone = sess.phone
		msg.StudentEmail = payload.RecipientEmail
	} else {
		msg.StudentEmail = sess.email
		msg.InstructorPhone = payload.RecipientPhone
	}
	s.SeedMessage(msg)

	stored := s.Messages()
	msg = stored[len(stored)-1]
	data, _ := json.Marshal(msg)
	push := types.Frame{Event: types.EventNewMessage, Data: data}

	counterpart := msg.StudentEmail
	if sess.role == types.RoleStudent {
		counterpart = msg.InstructorPhone
	}

	s.mu.Lock()
	targets := []*wsClient{client}
	if other, online := s.conns[counterpart]; online && other != client {
		targets = append(targets, other)
	}
	s.mu.Unlock()

	for _, target := range targets {
		_ = target.writeJSON(push)
	}
}
