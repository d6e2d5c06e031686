//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package netpoll

import (
	"net"
	"time"

	"telfs/internal/errors"
)

// Listener is unavailable on this platform.
type Listener struct{}

// Listen always fails with errors.ErrUnsupported.
func Listen(string, int) (*Listener, error) { return nil, errors.ErrUnsupported }

func (l *Listener) FD() int { return -1 }
func (l *Listener) Addr() *net.TCPAddr { return &net.TCPAddr{} }
func (l *Listener) Accept() (*Socket, error) { return nil, errors.ErrUnsupported }
func (l *Listener) Close() error { return nil }

// Socket is unavailable on this platform.
type Socket struct{}

func (s *Socket) FD() int { return -1 }
func (s *Socket) RemoteAddr() net.Addr { return &net.TCPAddr{} }
func (s *Socket) Read([]byte) (int, error) { return 0, errors.ErrUnsupported }
func (s *Socket) Write([]byte) (int, error) { return 0, errors.ErrUnsupported }
func (s *Socket) Close() error { return nil }

// Poller is unavailable on this platform.
type Poller struct{}

// NewPoller always fails with errors.ErrUnsupported.
func NewPoller() (*Poller, error) { return nil, errors.ErrUnsupported }

func (p *Poller) Add(int, Event) error { return errors.ErrUnsupported }
func (p *Poller) Modify(int, Event) error { return errors.ErrUnsupported }
func (p *Poller) Remove(int) {}
func (p *Poller) Wait(time.Duration) ([]Ready, error) { return nil, errors.ErrUnsupported }
func (p *Poller) Wake() {}
func (p *Poller) Close() error { return nil }
