package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/routerws/internal/domain"
)

const (
	defaultSendBufferSize = 16
	defaultWriteTimeout   = 5 * time.Second
	defaultPingInterval   = 30 * time.Second
	defaultPongWait       = 60 * time.Second
)

// Transport is the write side of a WebSocket as used by a Connection.
// *websocket.Conn satisfies it.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Options tunes the per-connection writer. Zero values fall back to defaults.
type Options struct {
	SendBufferSize int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	PongWait       time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = defaultSendBufferSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	return o
}

// Connection is one live subscriber link.
type Connection struct {
	id          uuid.UUID
	remoteAddr  string
	connectedAt time.Time

	transport Transport
	clock     clockwork.Clock
	opts      Options

	mu     sync.Mutex
	closed bool

	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewConnection wraps transport and starts its writer goroutine.
func NewConnection(transport Transport, remoteAddr string, clock clockwork.Clock, opts Options) *Connection {
	opts = opts.withDefaults()
	c := &Connection{
		id:          uuid.New(),
		remoteAddr:  remoteAddr,
		connectedAt: clock.Now(),
		transport:   transport,
		clock:       clock,
		opts:        opts,
		sendChannel: make(chan []byte, opts.SendBufferSize),
		doneChannel: make(chan struct{}),
	}
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Connection) ID() uuid.UUID          { return c.id }
func (c *Connection) RemoteAddr() string     { return c.remoteAddr }
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Alive reports whether the connection still accepts sends.
func (c *Connection) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Send queues a text frame without blocking.
// Returns domain.ErrConnectionClosed once the connection is closed and
// domain.ErrSendBufferFull when the writer cannot keep up.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrConnectionClosed
	}

	select {
	case c.sendChannel <- data:
		return nil
	default:
		return domain.ErrSendBufferFull
	}
}

// ExtendReadDeadline pushes the read deadline out by the pong wait.
// Called on every inbound frame.
func (c *Connection) ExtendReadDeadline() {
	deadline := c.clock.Now().Add(c.opts.PongWait)
	_ = c.transport.SetReadDeadline(deadline)
}

// Close marks the connection dead, closes the socket and waits for the writer
// to exit. Safe to call more than once.
func (c *Connection) Close() {
	c.markClosed()
	c.stopOnce.Do(func() {
		close(c.doneChannel)
		_ = c.transport.Close()
	})
	c.wg.Wait()
}

// CloseGraceful sends a close frame with reason before closing.
func (c *Connection) CloseGraceful(reason string) {
	c.markClosed()
	c.stopOnce.Do(func() {
		close(c.doneChannel)

		// The writer must be gone before we write the close frame.
		c.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		c.updateWriteDeadline()
		_ = c.transport.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = c.transport.Close()
	})
	c.wg.Wait()
}

func (c *Connection) run() {
	ticker := c.clock.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.sendChannel:
			c.updateWriteDeadline()
			if err := c.transport.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("Write failed, closing connection", "connection_id", c.id.String(), "error", err)
				c.fail()
				return
			}
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.transport.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Ping failed, closing connection", "connection_id", c.id.String(), "error", err)
				c.fail()
				return
			}
		case <-c.doneChannel:
			return
		}
	}
}

// fail closes the socket after a write error so the read loop observes it
// and drives deregistration.
func (c *Connection) fail() {
	c.markClosed()
	_ = c.transport.Close()
}

func (c *Connection) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Connection) configurePongHandler() {
	c.ExtendReadDeadline()
	c.transport.SetPongHandler(func(string) error {
		c.ExtendReadDeadline()
		return nil
	})
}

func (c *Connection) updateWriteDeadline() {
	deadline := c.clock.Now().Add(c.opts.WriteTimeout)
	_ = c.transport.SetWriteDeadline(deadline)
}
