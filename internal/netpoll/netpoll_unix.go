//go:build linux || darwin || freebsd || netbsd || openbsd

package netpoll

import (
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ── Listener ─────────────────────────────────────────────────────────

// Listener is a non-blocking TCP listening socket.
type Listener struct {
	fd   int
	addr *net.TCPAddr
}

// Listen binds addr ("ip:port", port 0 for an ephemeral port) and starts
// listening with the given backlog.
func Listen(addr string, backlog int) (*Listener, error) {
	ip, port, err := splitAddr(addr)
	if err != nil {
		return nil, err
	}

	family := unix.AF_INET6
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip4 != nil {
		family = unix.AF_INET
		sa4 := &unix.SockaddrInet4{Port: port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		sa6 := &unix.SockaddrInet6{Port: port}
		copy(sa6.Addr[:], ip.To16())
		sa = sa6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	fail := func(op string, err error) (*Listener, error) {
		unix.Close(fd)
		return nil, os.NewSyscallError(op, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("setnonblock", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail("listen", err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	return &Listener{fd: fd, addr: toTCPAddr(bound)}, nil
}

// FD returns the listening descriptor.
func (l *Listener) FD() int { return l.fd }

// Addr returns the bound address, with the real port when 0 was asked.
func (l *Listener) Addr() *net.TCPAddr { return l.addr }

// Accept returns the next pending connection, or ErrWouldBlock when the
// accept queue is empty.
func (l *Listener) Accept() (*Socket, error) {
	for {
		nfd, sa, err := unix.Accept(l.fd)
		switch err {
		case nil:
		case unix.EINTR, unix.ECONNABORTED:
			continue
		case unix.EAGAIN:
			return nil, ErrWouldBlock
		default:
			return nil, os.NewSyscallError("accept", err)
		}

		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			return nil, os.NewSyscallError("setnonblock", err)
		}
		if sa == nil {
			sa, _ = unix.Getpeername(nfd)
		}
		return &Socket{fd: nfd, remote: toTCPAddr(sa)}, nil
	}
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return os.NewSyscallError("close", unix.Close(l.fd))
}

// ── Socket ───────────────────────────────────────────────────────────

// Socket is a connected non-blocking TCP socket.
type Socket struct {
	fd     int
	remote *net.TCPAddr
}

// FD returns the socket descriptor.
func (s *Socket) FD() int { return s.fd }

// RemoteAddr returns the peer address.
func (s *Socket) RemoteAddr() net.Addr { return s.remote }

// Read reads what is available.  It returns io.EOF once the peer has
// closed its side and ErrWouldBlock when nothing is buffered.
func (s *Socket) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, os.NewSyscallError("read", err)
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes as much of p as the socket accepts without blocking.  A
// short count comes with ErrWouldBlock.
func (s *Socket) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(s.fd, p[written:])
		if n > 0 {
			written += n
		}
		switch err {
		case nil:
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return written, ErrWouldBlock
		default:
			return written, os.NewSyscallError("write", err)
		}
	}
	return written, nil
}

// Close closes the socket.
func (s *Socket) Close() error {
	return os.NewSyscallError("close", unix.Close(s.fd))
}

// ── Poller ───────────────────────────────────────────────────────────

// Poller is a poll(2) selector.  Descriptors are reported in the order
// they were added.
type Poller struct {
	mu       sync.Mutex
	closed   bool
	interest map[int]Event
	order    []int
	wakeR    int
	wakeW    int
	pfds     []unix.PollFd
}

// NewPoller creates a selector with its wakeup pipe.
func NewPoller() (*Poller, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, os.NewSyscallError("pipe", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, os.NewSyscallError("setnonblock", err)
		}
	}
	return &Poller{interest: make(map[int]Event), wakeR: p[0], wakeW: p[1]}, nil
}

// Add registers fd with the given interest.
func (p *Poller) Add(fd int, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.interest[fd]; ok {
		return os.NewSyscallError("poll add", unix.EEXIST)
	}
	p.interest[fd] = ev
	p.order = append(p.order, fd)
	return nil
}

// Modify replaces the interest of a registered fd.
func (p *Poller) Modify(fd int, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.interest[fd]; !ok {
		return os.NewSyscallError("poll modify", unix.ENOENT)
	}
	p.interest[fd] = ev
	return nil
}

// Remove deregisters fd.  Removing an unknown fd is a no-op.
func (p *Poller) Remove(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.interest[fd]; !ok {
		return
	}
	delete(p.interest, fd)
	for i, v := range p.order {
		if v == fd {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Wait blocks until a registered descriptor is ready, Wake is called or
// timeout elapses (Infinite waits forever).  A wakeup or an interrupted
// call returns no events and no error.
func (p *Poller) Wait(timeout time.Duration) ([]Ready, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, os.ErrClosed
	}
	p.pfds = p.pfds[:0]
	p.pfds = append(p.pfds, unix.PollFd{Fd: int32(p.wakeR), Events: unix.POLLIN})
	for _, fd := range p.order {
		var events int16
		ev := p.interest[fd]
		if ev&Readable != 0 {
			events |= unix.POLLIN
		}
		if ev&Writable != 0 {
			events |= unix.POLLOUT
		}
		p.pfds = append(p.pfds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	pfds := p.pfds
	p.mu.Unlock()

	n, err := unix.Poll(pfds, timeoutMillis(timeout))
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, os.NewSyscallError("poll", err)
	}
	if n == 0 {
		return nil, nil
	}

	if pfds[0].Revents != 0 {
		p.drainWake()
	}
	ready := make([]Ready, 0, n)
	for _, pfd := range pfds[1:] {
		if pfd.Revents == 0 {
			continue
		}
		ready = append(ready, Ready{
			FD:       int(pfd.Fd),
			Readable: pfd.Revents&unix.POLLIN != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			Hangup:   pfd.Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0,
		})
	}
	return ready, nil
}

// Wake interrupts a blocked Wait.  Safe to call from any goroutine.
func (p *Poller) Wake() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	unix.Write(p.wakeW, []byte{1}) //nolint:errcheck // a full pipe already wakes
}

// Close releases the wakeup pipe.  Registered descriptors are not closed.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	unix.Close(p.wakeW)
	return os.NewSyscallError("close", unix.Close(p.wakeR))
}

func (p *Poller) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func toTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IPv4(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3]), Port: a.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, a.Addr[:])
		return &net.TCPAddr{IP: ip, Port: a.Port, Zone: zoneName(a.ZoneId)}
	}
	return &net.TCPAddr{}
}

func zoneName(id uint32) string {
	if id == 0 {
		return ""
	}
	if ifi, err := net.InterfaceByIndex(int(id)); err == nil {
		return ifi.Name
	}
	return strconv.FormatUint(uint64(id), 10)
}
