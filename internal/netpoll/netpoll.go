// Package netpoll provides non-blocking TCP sockets and a poll(2)
// readiness selector, so a single goroutine can serve many connections.
//
// Nothing here starts goroutines.  The owner calls Poller.Wait in a loop
// and services whatever is ready; Wake is the only method intended to be
// called from elsewhere.
package netpoll

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// ErrWouldBlock is returned by Accept, Read and Write when the operation
// cannot make progress without blocking.
var ErrWouldBlock = errors.New("operation would block")

// Event is a set of readiness interests.
type Event uint8

const (
	Readable Event = 1 << iota
	Writable
)

func (e Event) String() string {
	switch e {
	case 0:
		return "none"
	case Readable:
		return "r"
	case Writable:
		return "w"
	case Readable | Writable:
		return "rw"
	}
	return "Event(" + strconv.Itoa(int(e)) + ")"
}

// Ready reports what a registered descriptor is ready for.
type Ready struct {
	FD       int
	Readable bool
	Writable bool
	// Hangup is set on POLLHUP, POLLERR and POLLNVAL.  A read will
	// report the actual condition.
	Hangup bool
}

// Infinite makes Wait block until something is ready or Wake is called.
const Infinite time.Duration = -1

func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		ms = 1
	}
	return int(ms)
}

func splitAddr(addr string) (net.IP, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, 0, &net.AddrError{Err: "invalid port", Addr: addr}
	}
	if host == "" {
		return net.IPv4zero, port, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, &net.AddrError{Err: "not a numeric IP", Addr: addr}
	}
	return ip, port, nil
}
