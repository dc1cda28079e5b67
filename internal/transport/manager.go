package transport

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pawhaven/chatkit/internal/stats"
	"github.com/pawhaven/chatkit/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096

	defaultBackoffBase = time.Second
	defaultBackoffCap  = 30 * time.Second
)

// Conn is the subset of *websocket.Conn the manager needs.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// DialFunc establishes one websocket connection. A 401/403 handshake
// response must surface as *types.AuthError.
type DialFunc func(ctx context.Context, url string, header http.Header) (Conn, error)

func gorillaDial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &types.AuthError{StatusCode: resp.StatusCode}
		}
		return nil, &types.TransportError{Op: "dial", Err: err}
	}
	return conn, nil
}

// ConnectionManager owns the single websocket connection for a session
// and the reconnect state machine around it.
type ConnectionManager struct {
	log   *log.Logger
	stats stats.StatsProvider

	url         string
	token       string
	maxAttempts int

	dial        DialFunc
	backoffBase time.Duration
	backoffCap  time.Duration

	mu            sync.Mutex
	state         types.ConnectionState
	stateHandlers []func(types.ConnectionState)
	onConnected   func()
	onAuthError   func(error)
	cancel        context.CancelFunc
	started       bool

	frames   chan []byte
	send     chan []byte
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewConnectionManager(url, token string, maxAttempts int, logger *log.Logger, sp stats.StatsProvider) *ConnectionManager {
	return &ConnectionManager{
		log:         logger,
		stats:       sp,
		url:         url,
		token:       token,
		maxAttempts: maxAttempts,
		dial:        gorillaDial,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		state:       types.StateDisconnected,
		frames:      make(chan []byte, 256),
		send:        make(chan []byte, 256),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Frames returns the inbound frame stream. Closed after Disconnect.
func (c *ConnectionManager) Frames() <-chan []byte {
	return c.frames
}

func (c *ConnectionManager) State() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a handler invoked on every state transition.
// Handlers run on the manager's goroutine and must not block.
func (c *ConnectionManager) OnStateChange(handler func(types.ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandlers = append(c.stateHandlers, handler)
}

// OnConnected registers the hook fired after every successful
// (re)connection, before any frame is read. The subscription
// multiplexer replays its active set here.
func (c *ConnectionManager) OnConnected(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = handler
}

// OnAuthError registers the hook fired when the handshake is rejected
// with 401/403. The session collaborator forces re-authentication.
func (c *ConnectionManager) OnAuthError(handler func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthError = handler
}

// Connect starts the connection loop. It returns immediately; progress
// is observed through OnStateChange.
func (c *ConnectionManager) Connect() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("already connected")
	}
	c.started = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Disconnect cancels any pending retry, closes the connection and
// forces DISCONNECTED. Terminal for this session.
func (c *ConnectionManager) Disconnect() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		started := c.started
		c.mu.Unlock()

		close(c.stop)
		if cancel != nil {
			cancel()
		}
		if started {
			<-c.done
		} else {
			c.setState(types.StateDisconnected)
		}
	})
}

// Send queues one outbound payload. Fails when the send buffer is full
// so a slow connection never blocks the dispatcher.
func (c *ConnectionManager) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	default:
		return &types.TransportError{Op: "send", Err: errors.New("send buffer full")}
	}
}

func (c *ConnectionManager) run(ctx context.Context) {
	defer func() {
		c.setState(types.StateDisconnected)
		close(c.frames)
		close(c.done)
	}()

	header := http.Header{"Authorization": []string{"Bearer " + c.token}}
	backoff := c.backoffBase
	failures := 0
	connected := false

	for {
		c.setState(types.StateConnecting)
		conn, err := c.dial(ctx, c.url, header)
		if err != nil {
			var authErr *types.AuthError
			if errors.As(err, &authErr) {
				c.log.Println("handshake rejected:", err)
				c.mu.Lock()
				handler := c.onAuthError
				c.mu.Unlock()
				if handler != nil {
					handler(err)
				}
				return
			}

			failures++
			c.log.Printf("connect failed (attempt %d): %v", failures, err)
			if c.maxAttempts > 0 && failures >= c.maxAttempts {
				c.log.Println("giving up after", failures, "consecutive failures")
				return
			}
			c.setState(types.StateReconnecting)
			if !c.waitBackoff(backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.backoffCap)
			continue
		}

		failures = 0
		backoff = c.backoffBase
		if connected {
			c.stats.Incr(stats.Reconnects)
		}
		connected = true

		c.setState(types.StateConnected)
		c.mu.Lock()
		handler := c.onConnected
		c.mu.Unlock()
		if handler != nil {
			handler()
		}

		err = c.pump(conn)
		conn.Close()
		select {
		case <-c.stop:
			return
		default:
		}

		c.log.Println("connection lost:", err)
		c.setState(types.StateReconnecting)
		if !c.waitBackoff(backoff) {
			return
		}
		backoff = nextBackoff(backoff, c.backoffCap)
	}
}

// pump runs the read and write halves until the connection fails or the
// manager is stopped.
func (c *ConnectionManager) pump(conn Conn) error {
	readErr := make(chan error, 1)
	go func() {
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(appData string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- &types.TransportError{Op: "read", Err: err}
				return
			}

			select {
			case c.frames <- raw:
			default:
				c.log.Println("frame buffer full, dropping frame")
				c.stats.Incr(stats.FramesDropped)
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				conn.Close()
				return <-readErr
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return <-readErr
			}
		case err := <-readErr:
			return err
		case <-c.stop:
			conn.Close()
			<-readErr
			return nil
		}
	}
}

func (c *ConnectionManager) waitBackoff(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.stop:
		return false
	}
}

func (c *ConnectionManager) setState(s types.ConnectionState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	handlers := make([]func(types.ConnectionState), len(c.stateHandlers))
	copy(handlers, c.stateHandlers)
	c.mu.Unlock()

	c.log.Println("connection state:", s)
	for _, h := range handlers {
		h(s)
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}
