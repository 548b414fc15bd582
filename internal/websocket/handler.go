package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pulseroom/internal/auth"
	"pulseroom/pkg/interfaces"
	"pulseroom/pkg/types"
)

// maxReadSize caps what the transport will buffer for one frame. Frames
// between types.MaxFrameSize and this limit are read and then rejected by
// the decoder without dropping the connection.
const maxReadSize = 64 << 10

// Authenticator verifies the credential carried by a handshake request.
type Authenticator interface {
	Authenticate(r *http.Request) (types.Credential, error)
}

// Options tunes the transport.
type Options struct {
	PingInterval  time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	SendBuffer    int
	EnforceExpiry bool
	CheckOrigin   func(r *http.Request) bool
}

// DefaultOptions returns the classroom heartbeat settings.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		SendBuffer:   100,
	}
}

// Handler is the Connection Gateway.
type Handler struct {
	registry   *Registry
	auth       Authenticator
	lifecycle  interfaces.Lifecycle
	dispatcher interfaces.Dispatcher
	opts       Options
	upgrader   websocket.Upgrader
	active     sync.WaitGroup
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, authenticator Authenticator, lifecycle interfaces.Lifecycle, dispatcher interfaces.Dispatcher, opts Options) *Handler {
	defaults := DefaultOptions()
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaults.ReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}

	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	return &Handler{
		registry:   registry,
		auth:       authenticator,
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		opts:       opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:      checkOrigin,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// HandleWebSocket admits a connection only after its credential verifies.
// Rejected handshakes get a plain HTTP 401 and never reach the upgrade.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	cred, err := h.auth.Authenticate(r)
	if err != nil {
		log.Printf("Connection refused from %s: %v", r.RemoteAddr, err)
		var authErr *auth.AuthenticationError
		if errors.As(err, &authErr) && authErr.Reason == auth.ReasonMissingToken {
			http.Error(w, auth.ErrMissingToken.Error(), http.StatusUnauthorized)
			return
		}
		http.Error(w, auth.ErrInvalidToken.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, cred, h.opts.SendBuffer, h.opts.WriteTimeout)
	h.active.Add(1)
	go func() {
		defer h.active.Done()
		h.serve(wsConn)
	}()
}

// Shutdown closes every bound connection and waits until each has finished
// its unbind bookkeeping, or until ctx is done.
func (h *Handler) Shutdown(ctx context.Context) error {
	closed := h.registry.CloseAll()
	log.Printf("Closing %d websocket connections", closed)

	finished := make(chan struct{})
	go func() {
		h.active.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serve runs one connection from bind to termination.
func (h *Handler) serve(conn *Connection) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cred := conn.Credential()

	if err := h.registry.Bind(conn); err != nil {
		log.Printf("Failed to bind connection %s: %v", conn.ID(), err)
		conn.MarkTerminated()
		_ = conn.Close()
		return
	}
	if err := conn.MarkBound(); err != nil {
		log.Printf("Connection %s could not be marked bound: %v", conn.ID(), err)
	}

	if err := h.lifecycle.OnBind(ctx, conn); err != nil {
		log.Printf("Connection %s rejected in room %s: %v", conn.ID(), cred.RoomCode, err)
		h.registry.Unbind(conn)
		conn.MarkTerminated()
		_ = conn.Close()
		return
	}

	log.Printf("Connection bound: id=%s session=%d role=%s room=%s", conn.ID(), cred.SessionID, cred.Role, cred.RoomCode)

	defer func() {
		h.registry.Unbind(conn)
		conn.MarkTerminated()
		h.lifecycle.OnUnbind(ctx, conn)
		_ = conn.Close()
		log.Printf("Connection terminated: id=%s session=%d room=%s", conn.ID(), cred.SessionID, cred.RoomCode)
	}()

	if h.opts.EnforceExpiry && !cred.ExpiresAt.IsZero() {
		timer := time.AfterFunc(time.Until(cred.ExpiresAt), func() {
			log.Printf("Credential expired for connection %s, disconnecting", conn.ID())
			_ = conn.Close()
		})
		defer timer.Stop()
	}

	h.readLoop(ctx, conn)
}

// readLoop handles heartbeat and inbound frames until the socket fails or
// the connection is closed.
func (h *Handler) readLoop(ctx context.Context, conn *Connection) {
	ws := conn.conn
	ws.SetReadLimit(maxReadSize)

	// TECHNICAL DISCOVERY: read deadline longer than the ping interval gives
	// one missed pong of slack on classroom networks
	if err := ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on connection %s: %v", conn.ID(), err)
			}
			return
		}

		select {
		case <-conn.Done():
			return
		default:
		}

		if messageType != websocket.TextMessage {
			continue
		}

		in, err := types.DecodeInbound(data)
		if err != nil {
			log.Printf("Ignoring frame from connection %s: %v", conn.ID(), err)
			continue
		}

		if !conn.IsBound() {
			return
		}
		h.dispatcher.Dispatch(ctx, conn, in)
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	if h.opts.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}
