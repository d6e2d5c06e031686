package server

import "sync"

// Registry tracks live connections by descriptor.  It is safe for
// concurrent use; All returns a snapshot so callers may add or remove
// while iterating.
type Registry struct {
	mu    sync.RWMutex
	byFD  map[int]*Conn
	order []*Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byFD: make(map[int]*Conn)}
}

// Add registers c.  A connection already registered under the same
// descriptor is replaced.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byFD[c.FD()]; ok {
		r.order = without(r.order, old)
	}
	r.byFD[c.FD()] = c
	r.order = append(r.order, c)
}

// Remove unregisters the connection on fd and returns it, or nil.
func (r *Registry) Remove(fd int) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byFD[fd]
	if !ok {
		return nil
	}
	delete(r.byFD, fd)
	r.order = without(r.order, c)
	return c
}

// Get returns the connection on fd.
func (r *Registry) Get(fd int) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byFD[fd]
	return c, ok
}

// All returns the live connections in acceptance order.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, len(r.order))
	copy(out, r.order)
	return out
}

// FindByAddress returns the connections accepted from addr.
func (r *Registry) FindByAddress(addr string) []*Conn {
	var out []*Conn
	for _, c := range r.All() {
		if c.RemoteAddr() == addr {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byFD)
}

func without(list []*Conn, c *Conn) []*Conn {
	for i, v := range list {
		if v == c {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
