// Package realtime owns the single bidirectional channel an
// authenticated session keeps to the backend. The manager connects on
// demand, reconnects with a bounded fixed-backoff policy when the
// transport drops, and dispatches named push events to listeners.
//
// Send-time reconnection is deliberately not handled here: a caller
// whose Emit fails with ErrNotConnected decides whether to Connect and
// retry. The chat timeline implements that policy.
package realtime

import (
	"context"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"classboard/pkg/types"
)

// State is the transport state of the managed channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

// Options configures the manager. ReconnectAttempts and ReconnectDelay
// apply only to the internal retry after a transport drop; they never
// change the outcome of an already resolved Connect call.
type Options struct {
	URL               string
	Path              string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
}

// RoleSource yields the session role sent as a handshake auth parameter.
type RoleSource interface {
	Role() (types.Role, error)
}

// Manager maintains at most one live channel per session.
type Manager struct {
	opts  Options
	roles RoleSource

	mu      sync.Mutex
	state   State
	ch      *Channel
	token   string
	stopped bool
	pending chan struct{} // closed when the in-flight connect attempt settles

	hookMu         sync.Mutex
	reconnectHooks []func()
}

// NewManager creates a disconnected manager.
func NewManager(opts Options, roles RoleSource) *Manager {
	return &Manager{opts: opts, roles: roles}
}

// Connect establishes the channel, or returns the live one when already
// connected: repeated mounts must not leak duplicate channels. A
// handshake failure is returned to the caller and leaves the manager
// disconnected.
func (m *Manager) Connect(ctx context.Context, token string) (*Channel, error) {
	for {
		m.mu.Lock()
		switch m.state {
		case Connected:
			ch := m.ch
			m.mu.Unlock()
			return ch, nil

		case Connecting:
			// Another connect is in flight; wait for it to settle and
			// re-evaluate rather than racing it with a second handshake.
			wait := m.pending
			m.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		case Disconnected:
			m.state = Connecting
			m.token = token
			m.stopped = false
			m.pending = make(chan struct{})
			pending := m.pending
			m.mu.Unlock()

			ch, err := m.dial(ctx, token)

			m.mu.Lock()
			if err != nil {
				m.state = Disconnected
				close(pending)
				m.mu.Unlock()
				return nil, err
			}
			m.ch = ch
			m.state = Connected
			close(pending)
			m.mu.Unlock()
			log.Printf("realtime: connected")
			return ch, nil
		}
	}
}

// Disconnect tears the channel down. Safe to call at any time, including
// when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	ch := m.ch
	m.ch = nil
	m.state = Disconnected
	m.stopped = true
	m.mu.Unlock()

	// the session is over; reconnect hooks die with it
	m.hookMu.Lock()
	m.reconnectHooks = nil
	m.hookMu.Unlock()

	if ch != nil {
		ch.close()
		log.Printf("realtime: disconnected")
	}
}

// IsConnected reflects transport state only, not session validity.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Connected
}

// On registers a push-event listener on the current channel and returns
// an id accepted by Off. Listeners and their ids are bound to the
// current channel instance and do not survive reconnects; callers
// re-register after Connect, or through an OnReconnect hook for the
// background redial.
func (m *Manager) On(event string, h Handler) uint64 {
	if ch := m.current(); ch != nil {
		return ch.on(event, h)
	}
	log.Printf("realtime: not connected, dropping listener for %q", event)
	return 0
}

// Off removes the listeners registered for event with the given ids, or
// every listener for event when no ids are given.
func (m *Manager) Off(event string, ids ...uint64) {
	if ch := m.current(); ch != nil {
		ch.off(event, ids...)
	}
}

// OnReconnect registers fn to run after every successful background
// redial. The replacement channel starts with an empty listener set, so
// this is where callers re-register their push listeners. Hooks live
// until Disconnect.
func (m *Manager) OnReconnect(fn func()) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.reconnectHooks = append(m.reconnectHooks, fn)
}

func (m *Manager) notifyReconnect() {
	m.hookMu.Lock()
	hooks := make([]func(), len(m.reconnectHooks))
	copy(hooks, m.reconnectHooks)
	m.hookMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Emit sends a named event, optionally requesting an acknowledgment.
// Emitting while disconnected fails with ErrNotConnected; the manager
// never connects implicitly on behalf of a send.
func (m *Manager) Emit(event string, payload any, ack func(types.Ack)) error {
	ch := m.current()
	if ch == nil {
		return ErrNotConnected
	}
	return ch.emit(event, payload, ack)
}

func (m *Manager) current() *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected {
		return nil
	}
	return m.ch
}

// dial performs the websocket handshake, passing token and role as
// connection-time auth parameters.
func (m *Manager) dial(ctx context.Context, token string) (*Channel, error) {
	role, err := m.roles.Role()
	if err != nil || !role.Valid() {
		role = types.RoleStudent
	}

	query := url.Values{}
	query.Set("token", token)
	query.Set("userType", string(role))
	target := m.opts.URL + m.opts.Path + "?" + query.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: m.opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}

	return newChannel(conn, m.opts.WriteTimeout, m.handleDrop), nil
}

// handleDrop reacts to an unexpected read failure on the live channel by
// kicking off the bounded background redial.
func (m *Manager) handleDrop(ch *Channel, err error) {
	m.mu.Lock()
	if m.ch != ch {
		m.mu.Unlock()
		return
	}
	m.ch = nil
	m.state = Disconnected
	m.mu.Unlock()

	log.Printf("realtime: connection dropped: %v", err)
	go m.redial()
}

// redial retries the handshake a fixed number of times with a fixed
// delay between attempts. The replacement channel starts with an empty
// listener set.
func (m *Manager) redial() {
	for attempt := 1; attempt <= m.opts.ReconnectAttempts; attempt++ {
		time.Sleep(m.opts.ReconnectDelay)

		m.mu.Lock()
		if m.stopped || m.state != Disconnected {
			m.mu.Unlock()
			return
		}
		token := m.token
		m.state = Connecting
		m.pending = make(chan struct{})
		pending := m.pending
		m.mu.Unlock()

		ch, err := m.dial(context.Background(), token)

		m.mu.Lock()
		if err != nil {
			m.state = Disconnected
			close(pending)
			m.mu.Unlock()
			log.Printf("realtime: reconnect attempt %d/%d failed: %v", attempt, m.opts.ReconnectAttempts, err)
			continue
		}
		m.ch = ch
		m.state = Connected
		close(pending)
		m.mu.Unlock()
		log.Printf("realtime: reconnected after drop")
		m.notifyReconnect()
		return
	}

	log.Printf("realtime: giving up after %d reconnect attempts", m.opts.ReconnectAttempts)
}
