package server

import (
	"io"

	"github.com/google/uuid"

	"telfs/internal/navigator"
)

// socket is what the loop needs from an accepted connection.  Read and
// Write must not block.
type socket interface {
	io.ReadWriteCloser
	FD() int
}

// Conn is the per-connection state.  It is owned by the event loop.
type Conn struct {
	ID uuid.UUID

	sock  socket
	addr  string
	input *LineBuffer

	cwd  string
	nick string

	pending []byte
	// closing is set by exit; the connection is torn down once pending
	// output has drained.
	closing bool
	// broken records the first write failure.
	broken error
}

func newConn(sock socket, addr, nick string, maxLine int) *Conn {
	return &Conn{
		ID:    uuid.New(),
		sock:  sock,
		addr:  addr,
		input: NewLineBuffer(maxLine),
		cwd:   navigator.Root,
		nick:  nick,
	}
}

// FD returns the socket descriptor, which keys the registry.
func (c *Conn) FD() int { return c.sock.FD() }

// RemoteAddr is the "ip:port" the connection was accepted from.
func (c *Conn) RemoteAddr() string { return c.addr }

// WorkingPath is the virtual current directory.
func (c *Conn) WorkingPath() string { return c.cwd }

// Nickname is the name shown in the prompt.
func (c *Conn) Nickname() string { return c.nick }

// Prefix decorates the prompt: "(nick@ip:port)".
func (c *Conn) Prefix() string {
	return "(" + c.nick + "@" + c.addr + ")"
}

// Pending is the number of bytes waiting for the socket.
func (c *Conn) Pending() int { return len(c.pending) }
