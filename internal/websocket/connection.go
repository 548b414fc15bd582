package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pulseroom/pkg/types"
)

// State is a connection's position in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateBound
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateBound:
		return "bound"
	default:
		return "terminated"
	}
}

// Connection implements interfaces.Connection over a gorilla websocket.
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized; one writer
// goroutine owns the socket for data frames.
type Connection struct {
	id           string
	conn         *websocket.Conn
	cred         types.Credential
	writeCh      chan []byte
	writeTimeout time.Duration
	done         chan struct{} // closed by Close
	flushed      chan struct{} // closed when writeLoop has released the socket
	closeOnce    sync.Once

	mu    sync.RWMutex
	state State
}

// NewConnection wraps an upgraded socket whose credential was already verified.
func NewConnection(conn *websocket.Conn, cred types.Credential, sendBuffer int, writeTimeout time.Duration) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 100
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	c := &Connection{
		id:           uuid.NewString(),
		conn:         conn,
		cred:         cred,
		writeCh:      make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
		flushed:      make(chan struct{}),
		state:        StateConnecting,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the only goroutine writing data frames. On Close it drains
// what is already queued, sends a close frame and releases the socket.
func (c *Connection) writeLoop() {
	defer close(c.flushed)
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.write(data); err != nil {
				log.Printf("Write to connection %s failed: %v", c.id, err)
				return
			}

		case <-c.done:
		drain:
			for {
				select {
				case data := <-c.writeCh:
					if err := c.write(data); err != nil {
						return
					}
				default:
					break drain
				}
			}
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
			return
		}
	}
}

func (c *Connection) write(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ID returns the connection handle.
func (c *Connection) ID() string { return c.id }

// Credential returns the identity the connection was admitted with.
func (c *Connection) Credential() types.Credential { return c.cred }

// Send queues event without blocking. A full buffer drops the event.
func (c *Connection) Send(event types.Outbound) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(event)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	case c.writeCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops accepting events and lets the writer flush and hang up.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// Done is closed once Close has been called.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Flushed is closed once the writer has released the socket.
func (c *Connection) Flushed() <-chan struct{} { return c.flushed }

// MarkBound moves a connecting connection to bound.
func (c *Connection) MarkBound() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return ErrInvalidTransition
	}
	c.state = StateBound
	return nil
}

// MarkTerminated is terminal and idempotent.
func (c *Connection) MarkTerminated() {
	c.mu.Lock()
	c.state = StateTerminated
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsBound reports whether the connection may still act in its room.
func (c *Connection) IsBound() bool {
	return c.State() == StateBound
}
