// Package registrytest provides an in-memory Transport. Test use only.
package registrytest

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrWriteFailed is returned by a failing Transport.
var ErrWriteFailed = errors.New("registrytest: write failed")

// Transport records text frames instead of writing them to a socket.
type Transport struct {
	mu         sync.Mutex
	messages   [][]byte
	closeFrame []byte
	closed     bool
	fail       bool
	block      chan struct{}
	written    chan struct{}
}

// NewTransport returns a recording transport.
func NewTransport() *Transport {
	return &Transport{written: make(chan struct{}, 1024)}
}

// NewFailingTransport returns a transport whose writes always fail.
func NewFailingTransport() *Transport {
	t := NewTransport()
	t.fail = true
	return t
}

// NewBlockingTransport returns a transport whose writes hang until Close.
func NewBlockingTransport() *Transport {
	t := NewTransport()
	t.block = make(chan struct{})
	return t
}

func (t *Transport) WriteMessage(messageType int, data []byte) error {
	if t.block != nil && messageType == websocket.TextMessage {
		<-t.block
		return errors.New("registrytest: transport closed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fail {
		return ErrWriteFailed
	}
	switch messageType {
	case websocket.TextMessage:
		t.messages = append(t.messages, append([]byte(nil), data...))
		select {
		case t.written <- struct{}{}:
		default:
		}
	case websocket.CloseMessage:
		t.closeFrame = append([]byte(nil), data...)
	}
	return nil
}

func (t *Transport) SetWriteDeadline(time.Time) error          { return nil }
func (t *Transport) SetReadDeadline(time.Time) error           { return nil }
func (t *Transport) SetPongHandler(func(appData string) error) {}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed && t.block != nil {
		close(t.block)
	}
	t.closed = true
	return nil
}

// Messages returns a copy of the text frames written so far.
func (t *Transport) Messages() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.messages))
	copy(out, t.messages)
	return out
}

// WaitForMessages blocks until n text frames were written or timeout expires.
func (t *Transport) WaitForMessages(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		t.mu.Lock()
		count := len(t.messages)
		t.mu.Unlock()
		if count >= n {
			return true
		}
		select {
		case <-t.written:
		case <-deadline:
			return false
		}
	}
}

// CloseFrame returns the payload of the close frame, if one was written.
func (t *Transport) CloseFrame() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeFrame
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
