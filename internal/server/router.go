package server

import (
	"telfs/internal/errors"
	"telfs/internal/metrics"
	"telfs/internal/netpoll"
)

// Router delivers responses to the connection they belong to.
//
// A write is attempted once, without blocking.  Whatever the socket does
// not take is queued on the connection and watch is asked to add write
// interest; Flush drains the queue when the loop sees write-readiness.
type Router struct {
	reg     *Registry
	watch   func(c *Conn, ev netpoll.Event)
	metrics *metrics.Collector
}

// NewRouter returns a router over reg.  watch may be nil.
func NewRouter(reg *Registry, watch func(*Conn, netpoll.Event), m *metrics.Collector) *Router {
	if watch == nil {
		watch = func(*Conn, netpoll.Event) {}
	}
	return &Router{reg: reg, watch: watch, metrics: m}
}

// Send writes msg to every connection accepted from addr and returns how
// many there were.
func (r *Router) Send(addr, msg string) int {
	conns := r.reg.FindByAddress(addr)
	for _, c := range conns {
		r.write(c, []byte(msg))
	}
	return len(conns)
}

func (r *Router) write(c *Conn, data []byte) {
	if c.broken != nil || len(data) == 0 {
		return
	}
	if len(c.pending) > 0 {
		c.pending = append(c.pending, data...)
		return
	}
	n, err := c.sock.Write(data)
	r.metrics.BytesSent(int64(n))
	switch {
	case err == nil && n == len(data):
	case err == nil, errors.Is(err, netpoll.ErrWouldBlock):
		c.pending = append(c.pending, data[n:]...)
		r.watch(c, netpoll.Readable|netpoll.Writable)
	default:
		c.broken = err
	}
}

// Flush writes queued output to c.  Write interest is dropped once the
// queue is empty.
func (r *Router) Flush(c *Conn) error {
	if len(c.pending) == 0 {
		return c.broken
	}
	n, err := c.sock.Write(c.pending)
	r.metrics.BytesSent(int64(n))
	rest := copy(c.pending, c.pending[n:])
	c.pending = c.pending[:rest]
	if err != nil && !errors.Is(err, netpoll.ErrWouldBlock) {
		c.broken = err
		return err
	}
	if len(c.pending) == 0 {
		r.watch(c, netpoll.Readable)
	}
	return nil
}
