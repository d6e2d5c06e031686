// Package server is the telfs reactor: one goroutine accepts
// connections, reassembles their command lines, runs the commands and
// routes each reply back to the connection that sent it.
package server

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"telfs/config"
	"telfs/internal/errors"
	"telfs/internal/fsgate"
	"telfs/internal/metrics"
	"telfs/internal/navigator"
	"telfs/internal/netpoll"
	"telfs/internal/perm"
	"telfs/internal/retry"
	"telfs/util"
)

const greeting = "Hello user!\nEnter --help for support info\n"

// selector is the part of *netpoll.Poller the loop mutates.
type selector interface {
	Add(fd int, ev netpoll.Event) error
	Modify(fd int, ev netpoll.Event) error
	Remove(fd int)
}

// Server serves the command protocol over one listening socket.
type Server struct {
	cfg       *config.Config
	fs        *fsgate.Gateway
	perms     perm.Set
	logger    *util.Logger
	metrics   *metrics.Collector
	reg       *Registry
	router    *Router
	rootLabel string

	ln      *netpoll.Listener
	poller  *netpoll.Poller
	sel     selector
	readBuf []byte
}

// New builds a server.  logger and m may be nil.
func New(cfg *config.Config, gw *fsgate.Gateway, logger *util.Logger, m *metrics.Collector) *Server {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	s := &Server{
		cfg:       cfg,
		fs:        gw,
		perms:     perm.Full(),
		logger:    logger,
		metrics:   m,
		reg:       NewRegistry(),
		rootLabel: filepath.Base(filepath.Clean(cfg.Root)),
		readBuf:   make([]byte, cfg.ReadBufferSize),
	}
	if cfg.ReadOnly {
		s.perms = perm.ReadOnly()
	}
	s.router = NewRouter(s.reg, s.watch, m)
	return s
}

// Listen binds the configured address, retrying while it is still in use,
// and prepares the selector.
func (s *Server) Listen(ctx context.Context) error {
	addr := s.cfg.ListenAddr()
	b := &retry.Backoff{
		Attempts:  s.cfg.BindRetries,
		Delay:     250 * time.Millisecond,
		MaxDelay:  4 * time.Second,
		Jitter:    true,
		Retryable: errors.IsRetryable,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			s.logger.Warn("address in use, retrying", "addr", addr, "attempt", attempt, "wait", wait.String())
		},
	}
	var ln *netpoll.Listener
	err := b.Do(ctx, func(int) error {
		var err error
		ln, err = netpoll.Listen(addr, s.cfg.Backlog)
		return err
	})
	if err != nil {
		return errors.Wrap("listen", addr, err)
	}

	poller, err := netpoll.NewPoller()
	if err != nil {
		ln.Close()
		return errors.Wrap("poll", addr, err)
	}
	if err := poller.Add(ln.FD(), netpoll.Readable); err != nil {
		ln.Close()
		poller.Close()
		return errors.Wrap("poll", addr, err)
	}
	s.ln, s.poller, s.sel = ln, poller, poller
	s.logger.Info("listening", "addr", ln.Addr().String(), "root", s.cfg.Root, "perms", s.perms.String())
	return nil
}

// Addr is the bound address; valid after Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the event loop until ctx is cancelled or the listener
// fails.  Every connection is closed on return.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return fmt.Errorf("serve: %w", errors.ErrServerClosed)
	}
	defer s.shutdown()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.poller.Wake()
		case <-stop:
		}
	}()

	for ctx.Err() == nil {
		ready, err := s.poller.Wait(netpoll.Infinite)
		if err != nil {
			return errors.Wrap("poll", s.ln.Addr().String(), err)
		}
		for _, r := range ready {
			if r.FD == s.ln.FD() {
				if err := s.acceptAll(); err != nil {
					return err
				}
				continue
			}
			if c, ok := s.reg.Get(r.FD); ok {
				s.service(c, r)
			}
		}
	}
	return nil
}

// ── event handlers ───────────────────────────────────────────────────

func (s *Server) acceptAll() error {
	for {
		sock, err := s.ln.Accept()
		switch {
		case err == nil:
			s.register(sock, sock.RemoteAddr().String())
		case errors.Is(err, netpoll.ErrWouldBlock):
			return nil
		case errors.IsRetryable(err):
			// The pending connection stays queued until a descriptor frees up.
			s.logger.Error("accept failed", "err", err)
			s.metrics.RecordError(err.Error())
			return nil
		default:
			return errors.Wrap("accept", s.ln.Addr().String(), err)
		}
	}
}

func (s *Server) register(sock socket, addr string) {
	c := newConn(sock, addr, s.cfg.Nickname, s.cfg.MaxLineLength)
	if err := s.sel.Add(c.FD(), netpoll.Readable); err != nil {
		s.logger.Error("cannot watch connection", "addr", addr, "err", err)
		sock.Close()
		return
	}
	s.reg.Add(c)
	s.metrics.ConnectionOpened()
	s.logger.Info("client accepted", "addr", addr, "conn", c.ID.String())

	s.router.Send(addr, greeting)
	s.prompt(c)
	s.reap(c)
}

func (s *Server) service(c *Conn, r netpoll.Ready) {
	if r.Writable {
		s.router.Flush(c) //nolint:errcheck // recorded on c
	}
	if (r.Readable || r.Hangup) && c.broken == nil && !c.closing {
		s.read(c)
	}
	s.reap(c)
}

func (s *Server) read(c *Conn) {
	n, err := c.sock.Read(s.readBuf)
	if n > 0 {
		s.metrics.BytesReceived(int64(n))
		lines, lerr := c.input.Feed(s.readBuf[:n])
		if lerr != nil {
			s.logger.Warn("dropping line", "conn", c.ID.String(), "err", lerr)
			s.replyError(c, lerr)
		}
		for _, line := range lines {
			s.execute(c, line)
			if c.closing || c.broken != nil {
				return
			}
		}
		if len(lines) > 0 || lerr != nil {
			s.prompt(c)
		}
	}
	switch {
	case err == nil, errors.Is(err, netpoll.ErrWouldBlock):
	default:
		c.broken = err
	}
}

// reap tears c down once it has failed, or once it asked to leave and
// its output has drained.
func (s *Server) reap(c *Conn) {
	switch {
	case c.broken != nil:
		s.teardown(c, c.broken)
	case c.closing && len(c.pending) == 0:
		s.teardown(c, nil)
	}
}

func (s *Server) teardown(c *Conn, cause error) {
	if s.reg.Remove(c.FD()) == nil {
		return
	}
	s.sel.Remove(c.FD())
	c.sock.Close()
	s.metrics.ConnectionClosed()

	log := s.logger.With("addr", c.addr, "conn", c.ID.String())
	switch {
	case cause == nil:
		log.Info("client logged out")
	case util.IsDisconnect(cause), errors.Is(cause, errors.ErrServerClosed):
		log.Info("client disconnected")
	default:
		s.metrics.RecordError(cause.Error())
		log.Warn("connection failed", "err", cause)
	}
}

func (s *Server) prompt(c *Conn) {
	s.router.Send(c.addr, c.Prefix()+"->"+navigator.Display(s.rootLabel, c.cwd)+": ")
}

func (s *Server) watch(c *Conn, ev netpoll.Event) {
	if err := s.sel.Modify(c.FD(), ev); err != nil {
		s.logger.Debug("modify interest", "conn", c.ID.String(), "events", ev.String(), "err", err)
	}
}

func (s *Server) shutdown() {
	for _, c := range s.reg.All() {
		s.router.Flush(c) //nolint:errcheck
		s.teardown(c, errors.ErrServerClosed)
	}
	s.ln.Close()
	s.poller.Close()
	s.logger.Info("server stopped", "metrics", s.metrics.JSON())
}
