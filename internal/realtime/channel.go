package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"classboard/pkg/types"
)

// Handler receives the raw payload of a named push event.
type Handler func(data json.RawMessage)

// handlerReg pairs a listener with the id handed back on registration,
// so individual listeners can be removed later.
type handlerReg struct {
	id uint64
	fn Handler
}

// Channel wraps one live websocket. Writes are serialized through a
// single writer goroutine; listeners and pending acks live on the
// channel instance and die with it, so reconnecting callers must
// re-register their listeners.
type Channel struct {
	conn         *websocket.Conn
	writeCh      chan types.Frame
	writeTimeout time.Duration

	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]handlerReg
	acks     map[string]func(types.Ack)

	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	deliberate atomic.Bool
	onDrop     func(*Channel, error)
}

func newChannel(conn *websocket.Conn, writeTimeout time.Duration, onDrop func(*Channel, error)) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		conn:         conn,
		writeCh:      make(chan types.Frame, 100),
		writeTimeout: writeTimeout,
		handlers:     make(map[string][]handlerReg),
		acks:         make(map[string]func(types.Ack)),
		ctx:          ctx,
		cancel:       cancel,
		onDrop:       onDrop,
	}

	go c.writeLoop()
	go c.readLoop()

	return c
}

func (c *Channel) writeLoop() {
	for {
		select {
		case frame := <-c.writeCh:
			data, err := json.Marshal(frame)
			if err != nil {
				log.Printf("realtime: failed to encode frame: %v", err)
				continue
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Channel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.teardown()
			if !c.deliberate.Load() && c.onDrop != nil {
				c.onDrop(c, err)
			}
			return
		}

		var frame types.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("realtime: dropping unparseable frame: %v", err)
			continue
		}

		if frame.Event == types.EventAck {
			c.resolveAck(frame)
			continue
		}

		// Known push events are decoded at the boundary so malformed
		// payloads never reach listeners.
		if frame.Event == types.EventNewMessage || frame.Event == types.EventError {
			if _, err := types.DecodeEvent(frame); err != nil {
				log.Printf("realtime: dropping malformed %q event: %v", frame.Event, err)
				continue
			}
		}

		c.dispatch(frame)
	}
}

func (c *Channel) dispatch(frame types.Frame) {
	c.mu.RLock()
	handlers := make([]handlerReg, len(c.handlers[frame.Event]))
	copy(handlers, c.handlers[frame.Event])
	c.mu.RUnlock()

	for _, h := range handlers {
		h.fn(frame.Data)
	}
}

func (c *Channel) resolveAck(frame types.Frame) {
	c.mu.Lock()
	callback, ok := c.acks[frame.Ack]
	delete(c.acks, frame.Ack)
	c.mu.Unlock()

	if !ok {
		return
	}

	var ack types.Ack
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &ack); err != nil {
			ack = types.Ack{Error: "malformed acknowledgment"}
		}
	}
	callback(ack)
}

func (c *Channel) on(event string, h Handler) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.handlers[event] = append(c.handlers[event], handlerReg{id: c.nextID, fn: h})
	return c.nextID
}

// off removes the listeners identified by ids, or every listener for
// event when no ids are given.
func (c *Channel) off(event string, ids ...uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) == 0 {
		delete(c.handlers, event)
		return
	}

	kept := c.handlers[event][:0]
	for _, reg := range c.handlers[event] {
		removed := false
		for _, id := range ids {
			if reg.id == id {
				removed = true
				break
			}
		}
		if !removed {
			kept = append(kept, reg)
		}
	}
	c.handlers[event] = kept
}

func (c *Channel) emit(event string, payload any, ack func(types.Ack)) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return ErrInvalidPayload
	}

	frame := types.Frame{Event: event, Data: data}
	if ack != nil {
		id := uuid.NewString()
		c.mu.Lock()
		c.acks[id] = ack
		c.mu.Unlock()
		frame.Ack = id
	}

	select {
	case c.writeCh <- frame:
		return nil
	case <-c.ctx.Done():
		c.removeAck(frame.Ack)
		return ErrNotConnected
	case <-time.After(c.writeTimeout):
		c.removeAck(frame.Ack)
		return ErrWriteTimeout
	}
}

func (c *Channel) removeAck(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.acks, id)
}

// close tears the channel down deliberately, suppressing the drop
// callback the read loop would otherwise fire.
func (c *Channel) close() {
	c.deliberate.Store(true)
	c.teardown()
}

func (c *Channel) teardown() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()

		// Sends that were written but never acknowledged must not hang
		// in limbo; fail their callbacks so the error path fires.
		c.mu.Lock()
		pending := c.acks
		c.acks = make(map[string]func(types.Ack))
		c.mu.Unlock()
		for _, callback := range pending {
			callback(types.Ack{Error: "connection closed before acknowledgment"})
		}
	})
}
