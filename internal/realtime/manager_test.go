package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classboard/pkg/types"
)

type staticRole types.Role

func (r staticRole) Role() (types.Role, error) { return types.Role(r), nil }

// wsServer is a minimal realtime backend for manager tests: it counts
// handshakes, acks send-message frames, and can push arbitrary frames.
type wsServer struct {
	srv      *httptest.Server
	upgrades atomic.Int32
	reject   atomic.Bool
	silent   atomic.Bool  // swallow frames without acking
	ackError atomic.Value // string

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	ws := &wsServer{}
	upgrader := websocket.Upgrader{}

	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ws.reject.Load() {
			http.Error(w, "handshake rejected", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.upgrades.Add(1)
		ws.mu.Lock()
		ws.conns = append(ws.conns, conn)
		ws.mu.Unlock()

		go ws.serve(conn)
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsServer) serve(conn *websocket.Conn) {
	for {
		var frame types.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Ack == "" || ws.silent.Load() {
			continue
		}
		ackErr, _ := ws.ackError.Load().(string)
		data, _ := json.Marshal(types.Ack{Error: ackErr})
		_ = conn.WriteJSON(types.Frame{Event: types.EventAck, Ack: frame.Ack, Data: data})
	}
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.srv.URL, "http")
}

func (ws *wsServer) push(t *testing.T, frame types.Frame) {
	t.Helper()
	ws.mu.Lock()
	defer ws.mu.Unlock()
	require.NotEmpty(t, ws.conns)
	require.NoError(t, ws.conns[len(ws.conns)-1].WriteJSON(frame))
}

func (ws *wsServer) dropAll() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, conn := range ws.conns {
		_ = conn.Close()
	}
	ws.conns = nil
}

func newTestManager(ws *wsServer) *Manager {
	return NewManager(Options{
		URL:               ws.url(),
		Path:              "",
		ReconnectAttempts: 5,
		ReconnectDelay:    10 * time.Millisecond,
		HandshakeTimeout:  time.Second,
		WriteTimeout:      time.Second,
	}, staticRole(types.RoleInstructor))
}

func TestConnectIsIdempotentWhileConnected(t *testing.T) {
	ws := newWSServer(t)
	m := newTestManager(ws)

	first, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)

	second, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.True(t, m.IsConnected())
	assert.Equal(t, int32(1), ws.upgrades.Load())

	m.Disconnect()
}

func TestConnectHandshakeFailure(t *testing.T) {
	ws := newWSServer(t)
	ws.reject.Store(true)
	m := newTestManager(ws)

	_, err := m.Connect(context.Background(), "tok")
	require.Error(t, err)
	assert.False(t, m.IsConnected())

	// a later connect succeeds once the backend accepts again
	ws.reject.Store(false)
	_, err = m.Connect(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, m.IsConnected())

	m.Disconnect()
}

func TestEmitWhileDisconnected(t *testing.T) {
	ws := newWSServer(t)
	m := newTestManager(ws)

	err := m.Emit(types.EventSendMessage, types.SendMessage{Message: "hi", RecipientEmail: "a@b.co"}, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestEmitAckRoundTrip(t *testing.T) {
	ws := newWSServer(t)
	m := newTestManager(ws)

	_, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)
	defer m.Disconnect()

	acks := make(chan types.Ack, 1)
	err = m.Emit(types.EventSendMessage, types.SendMessage{Message: "hi", RecipientEmail: "a@b.co"}, func(a types.Ack) {
		acks <- a
	})
	require.NoError(t, err)

	select {
	case ack := <-acks:
		assert.Empty(t, ack.Error)
	case <-time.After(time.Second):
		t.Fatal("acknowledgment never arrived")
	}
}

func TestEmitAckReportsServerError(t *testing.T) {
	ws := newWSServer(t)
	ws.ackError.Store("recipient offline")
	m := newTestManager(ws)

	_, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)
	defer m.Disconnect()

	acks := make(chan types.Ack, 1)
	require.NoError(t, m.Emit(types.EventSendMessage, types.SendMessage{Message: "hi", RecipientEmail: "a@b.co"}, func(a types.Ack) {
		acks <- a
	}))

	select {
	case ack := <-acks:
		assert.Equal(t, "recipient offline", ack.Error)
	case <-time.After(time.Second):
		t.Fatal("acknowledgment never arrived")
	}
}

func TestOnDispatchesPushEvents(t *testing.T) {
	ws := newWSServer(t)
	m := newTestManager(ws)

	_, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)
	defer m.Disconnect()

	got := make(chan json.RawMessage, 1)
	m.On(types.EventNewMessage, func(data json.RawMessage) {
		got <- data
	})

	payload, _ := json.Marshal(types.ServerMessage{
		SenderType:   types.RoleStudent,
		StudentEmail: "alice@example.com",
		Message:      "hello",
		Timestamp:    time.Now(),
	})
	ws.push(t, types.Frame{Event: types.EventNewMessage, Data: payload})

	select {
	case data := <-got:
		var msg types.ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "hello", msg.Message)
	case <-time.After(time.Second):
		t.Fatal("push event never dispatched")
	}
}

func TestMalformedPushEventsNeverReachListeners(t *testing.T) {
	ws := newWSServer(t)
	m := newTestManager(ws)

	_, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)
	defer m.Disconnect()

	got := make(chan json.RawMessage, 2)
	m.On(types.EventNewMessage, func(data json.RawMessage) {
		got <- data
	})

	// missing sender and body: rejected at the boundary
	ws.push(t, types.Frame{Event: types.EventNewMessage, Data: []byte(`{"studentEmail":"a@b.co"}`)})
	// a valid event afterwards proves the channel survived
	payload, _ := json.Marshal(types.ServerMessage{
		SenderType:   types.RoleStudent,
		StudentEmail: "a@b.co",
		Message:      "still here",
		Timestamp:    time.Now(),
	})
	ws.push(t, types.Frame{Event: types.EventNewMessage, Data: payload})

	select {
	case data := <-got:
		var msg types.ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "still here", msg.Message)
	case <-time.After(time.Second):
		t.Fatal("valid push event never dispatched")
	}
	assert.Empty(t, got)
}

func TestOffRemovesListeners(t *testing.T) {
	ws := newWSServer(t)
	m := newTestManager(ws)

	_, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)
	defer m.Disconnect()

	calls := make(chan struct{}, 2)
	m.On(types.EventError, func(json.RawMessage) { calls <- struct{}{} })
	m.Off(types.EventError)

	probe := make(chan struct{}, 1)
	m.On(types.EventNewMessage, func(json.RawMessage) { probe <- struct{}{} })

	ws.push(t, types.Frame{Event: types.EventError, Data: []byte(`{"message":"boom"}`)})
	payload, _ := json.Marshal(types.ServerMessage{
		SenderType:   types.RoleStudent,
		StudentEmail: "a@b.co",
		Message:      "probe",
		Timestamp:    time.Now(),
	})
	ws.push(t, types.Frame{Event: types.EventNewMessage, Data: payload})

	select {
	case <-probe:
	case <-time.After(time.Second):
		t.Fatal("probe event never dispatched")
	}
	assert.Empty(t, calls)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	ws := newWSServer(t)
	m := newTestManager(ws)

	m.Disconnect() // disconnecting while disconnected is a no-op

	_, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)

	m.Disconnect()
	m.Disconnect()
	assert.False(t, m.IsConnected())
}

func TestAutoRedialAfterTransportDrop(t *testing.T) {
	ws := newWSServer(t)
	m := newTestManager(ws)

	_, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)
	defer m.Disconnect()

	ws.dropAll()

	require.Eventually(t, m.IsConnected, 2*time.Second, 10*time.Millisecond,
		"manager never reconnected after transport drop")
	assert.Equal(t, int32(2), ws.upgrades.Load())
}

func TestListenersDoNotSurviveReconnect(t *testing.T) {
	ws := newWSServer(t)
	m := newTestManager(ws)

	_, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)
	defer m.Disconnect()

	calls := make(chan struct{}, 1)
	m.On(types.EventNewMessage, func(json.RawMessage) { calls <- struct{}{} })

	ws.dropAll()
	require.Eventually(t, m.IsConnected, 2*time.Second, 10*time.Millisecond)

	payload, _ := json.Marshal(types.ServerMessage{
		SenderType:   types.RoleStudent,
		StudentEmail: "a@b.co",
		Message:      "after reconnect",
		Timestamp:    time.Now(),
	})
	ws.push(t, types.Frame{Event: types.EventNewMessage, Data: payload})

	select {
	case <-calls:
		t.Fatal("listener from the previous channel instance fired after reconnect")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestOffRemovesSpecificListener(t *testing.T) {
	ws := newWSServer(t)
	m := newTestManager(ws)

	_, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)
	defer m.Disconnect()

	removed := make(chan struct{}, 1)
	kept := make(chan struct{}, 1)
	id := m.On(types.EventNewMessage, func(json.RawMessage) { removed <- struct{}{} })
	m.On(types.EventNewMessage, func(json.RawMessage) { kept <- struct{}{} })
	m.Off(types.EventNewMessage, id)

	payload, _ := json.Marshal(types.ServerMessage{
		SenderType:   types.RoleStudent,
		StudentEmail: "a@b.co",
		Message:      "hello",
		Timestamp:    time.Now(),
	})
	ws.push(t, types.Frame{Event: types.EventNewMessage, Data: payload})

	select {
	case <-kept:
	case <-time.After(time.Second):
		t.Fatal("surviving listener never fired")
	}
	assert.Empty(t, removed)
}

func TestReconnectHookRestoresListeners(t *testing.T) {
	ws := newWSServer(t)
	m := newTestManager(ws)

	_, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)
	defer m.Disconnect()

	got := make(chan json.RawMessage, 1)
	subscribe := func() {
		m.On(types.EventNewMessage, func(data json.RawMessage) { got <- data })
	}
	subscribe()
	m.OnReconnect(subscribe)

	ws.dropAll()
	require.Eventually(t, m.IsConnected, 2*time.Second, 10*time.Millisecond)

	payload, _ := json.Marshal(types.ServerMessage{
		SenderType:   types.RoleStudent,
		StudentEmail: "a@b.co",
		Message:      "after reconnect",
		Timestamp:    time.Now(),
	})
	ws.push(t, types.Frame{Event: types.EventNewMessage, Data: payload})

	select {
	case data := <-got:
		var msg types.ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "after reconnect", msg.Message)
	case <-time.After(time.Second):
		t.Fatal("push after reconnect never reached the re-registered listener")
	}
}

func TestPendingAcksFailOnConnectionDrop(t *testing.T) {
	ws := newWSServer(t)
	ws.silent.Store(true)
	m := newTestManager(ws)

	_, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)
	defer m.Disconnect()

	acks := make(chan types.Ack, 1)
	require.NoError(t, m.Emit(types.EventSendMessage, types.SendMessage{Message: "hi", RecipientEmail: "a@b.co"}, func(a types.Ack) {
		acks <- a
	}))

	ws.dropAll()

	select {
	case ack := <-acks:
		assert.NotEmpty(t, ack.Error)
	case <-time.After(time.Second):
		t.Fatal("pending acknowledgment never resolved after the drop")
	}
}

func TestDeliberateDisconnectDoesNotRedial(t *testing.T) {
	ws := newWSServer(t)
	m := newTestManager(ws)

	_, err := m.Connect(context.Background(), "tok")
	require.NoError(t, err)

	m.Disconnect()
	time.Sleep(100 * time.Millisecond)

	assert.False(t, m.IsConnected())
	assert.Equal(t, int32(1), ws.upgrades.Load())
}

func TestHandshakeCarriesAuthParams(t *testing.T) {
	var query atomic.Value
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query().Encode())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn
	}))
	defer srv.Close()

	m := NewManager(Options{
		URL:              "ws" + strings.TrimPrefix(srv.URL, "http"),
		Path:             "/socket.io",
		HandshakeTimeout: time.Second,
		WriteTimeout:     time.Second,
		ReconnectDelay:   10 * time.Millisecond,
	}, staticRole(types.RoleInstructor))

	_, err := m.Connect(context.Background(), "tok-123")
	require.NoError(t, err)
	defer m.Disconnect()

	q := query.Load().(string)
	assert.Contains(t, q, "token=tok-123")
	assert.Contains(t, q, "userType=instructor")
}
