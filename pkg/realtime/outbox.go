package realtime

import (
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by Send after the outbox has been closed.
	ErrClosed = errors.New("outbox closed")
	// ErrLagging is returned by Send when the consumer has fallen a full
	// buffer behind. Callers treat it as a dead connection.
	ErrLagging = errors.New("outbox full")
)

// DefaultOutboxSize is the queue depth used when none is configured.
const DefaultOutboxSize = 16

// Outbox is a bounded queue of serialized messages for one connection.
// Producers call Send from any goroutine; the connection's write pump
// drains C until it is closed.
type Outbox struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewOutbox creates an outbox holding up to size pending messages.
func NewOutbox(size int) *Outbox {
	if size < 1 {
		size = DefaultOutboxSize
	}
	return &Outbox{ch: make(chan []byte, size)}
}

// C returns the channel the write pump reads from. It is closed by Close.
func (o *Outbox) C() <-chan []byte {
	return o.ch
}

// Send enqueues msg without blocking.
func (o *Outbox) Send(msg []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	select {
	case o.ch <- msg:
		return nil
	default:
		return ErrLagging
	}
}

// Close stops accepting messages and closes the channel. Pending messages
// stay readable. Close is safe to call more than once.
func (o *Outbox) Close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
	o.mu.Unlock()
}

// Closed reports whether Close has been called.
func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
