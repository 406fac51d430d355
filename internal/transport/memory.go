package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
)

// MemoryDialer is an in-process Dialer twin. Tests script dial outcomes with
// QueueError and drive established connections through the MemoryConn handed
// out on Accepted.
type MemoryDialer struct {
	mu       sync.Mutex
	pending  []error
	accepted chan *MemoryConn
}

// NewMemoryDialer creates a dialer that accepts every connection unless an
// error is queued.
func NewMemoryDialer() *MemoryDialer {
	return &MemoryDialer{accepted: make(chan *MemoryConn, 16)}
}

// QueueError makes the next dial attempt fail with err.
func (d *MemoryDialer) QueueError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, err)
}

// Accepted yields the server side of each established connection.
func (d *MemoryDialer) Accepted() <-chan *MemoryConn {
	return d.accepted
}

func (d *MemoryDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if len(d.pending) > 0 {
		err := d.pending[0]
		d.pending = d.pending[1:]
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	conn := &MemoryConn{
		URL:    url,
		inbox:  make(chan []byte, 64),
		outbox: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	select {
	case d.accepted <- conn:
	default:
	}
	return conn, nil
}

// MemoryConn is the in-process connection created by MemoryDialer. The test
// acts as the server: Deliver pushes frames the channel will read, Sent
// exposes frames the channel wrote.
type MemoryConn struct {
	URL string

	inbox  chan []byte
	outbox chan []byte
	pings  atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// Deliver queues a frame for the reader side.
func (c *MemoryConn) Deliver(frame []byte) {
	select {
	case c.inbox <- frame:
	case <-c.closed:
	}
}

// Sent yields frames written by the channel.
func (c *MemoryConn) Sent() <-chan []byte {
	return c.outbox
}

// Pings reports how many keepalives were sent.
func (c *MemoryConn) Pings() int64 {
	return c.pings.Load()
}

// Closed reports whether the connection was torn down.
func (c *MemoryConn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *MemoryConn) ReadMessage() ([]byte, error) {
	select {
	case frame := <-c.inbox:
		return frame, nil
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

func (c *MemoryConn) WriteMessage(data []byte) error {
	select {
	case c.outbox <- data:
		return nil
	case <-c.closed:
		return net.ErrClosed
	}
}

func (c *MemoryConn) Ping() error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
		c.pings.Add(1)
		return nil
	}
}

func (c *MemoryConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
