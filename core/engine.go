package core

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/searchktools/surge-server/core/content"
	"github.com/searchktools/surge-server/core/observability"
	"github.com/searchktools/surge-server/core/poller"
	"github.com/searchktools/surge-server/core/pools"
)

// Options configures a Server. Zero fields fall back to defaults.
type Options struct {
	// Port to listen on. 0 lets the kernel pick one; Port() reports it.
	Port int

	// Root is the directory GET targets resolve against.
	Root string

	Workers   int
	QueueSize int

	IdleTimeout   time.Duration
	MaxEvents     int
	WaitTimeoutMs int

	// Sink consumes POST bodies. Nil disables the sink.
	Sink content.BodySink

	Logger *logrus.Logger
}

// Server is the connection lifecycle engine: one accept goroutine
// multiplexing sockets and reaping idle timers, a fixed worker pool
// driving the request parser, and the shared timer set keeping them
// coherent.
type Server struct {
	root        string
	portOpt     int
	idleTimeout time.Duration
	maxEvents   int
	waitTimeout int

	log     *logrus.Logger
	metrics *observability.Metrics

	poller poller.Poller
	disp   *dispatcher
	timers *TimerSet
	pool   *pools.WorkerPool
	bytes  *pools.BytePool
	conns  *pools.ConnectionPool
	sink   content.BodySink

	listenFd int
	port     atomic.Int32
	closed   atomic.Bool
	done     chan struct{}
}

// New builds a Server from opts. The listen socket is created in Run.
func New(opts Options) *Server {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = DefaultMaxEvents
	}
	if opts.WaitTimeoutMs <= 0 {
		opts.WaitTimeoutMs = DefaultWaitTimeoutMs
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	s := &Server{
		root:        opts.Root,
		portOpt:     opts.Port,
		idleTimeout: opts.IdleTimeout,
		maxEvents:   opts.MaxEvents,
		waitTimeout: opts.WaitTimeoutMs,
		log:         opts.Logger,
		metrics:     observability.NewMetrics(),
		timers:      NewTimerSet(),
		pool:        pools.NewWorkerPool(opts.Workers, opts.QueueSize),
		bytes:       pools.NewBytePool(),
		sink:        opts.Sink,
		listenFd:    -1,
		done:        make(chan struct{}),
	}
	s.conns = pools.NewConnectionPool(func() any {
		return newConn()
	})
	return s
}

// Metrics returns the server metric set for scraping.
func (s *Server) Metrics() *observability.Metrics {
	return s.metrics
}

// Port returns the bound listen port once Run has started.
func (s *Server) Port() int {
	return int(s.port.Load())
}

// Run binds the listen socket and drives the event loop until Close.
func (s *Server) Run() error {
	defer close(s.done)

	lfd, err := socketBindListen(s.portOpt)
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.portOpt, err)
	}
	s.listenFd = lfd

	sa, err := unix.Getsockname(lfd)
	if err == nil {
		if in4, ok := sa.(*unix.SockaddrInet4); ok {
			s.port.Store(int32(in4.Port))
		}
	}

	p, err := poller.NewPoller(s.maxEvents)
	if err != nil {
		unix.Close(lfd)
		return fmt.Errorf("create poller: %w", err)
	}
	s.poller = p
	s.disp = newDispatcher(p)

	// The listener stays edge-triggered without one-shot; accept loops
	// until EAGAIN on every notification.
	if err := p.Add(lfd, poller.EventReadable|poller.EventEdge); err != nil {
		p.Close()
		unix.Close(lfd)
		return fmt.Errorf("arm listen socket: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"port": s.Port(),
		"root": s.root,
	}).Info("🚀 surge server listening")

	for !s.closed.Load() {
		events, err := p.Wait(s.waitTimeout)
		if err != nil {
			s.log.WithError(err).Error("poller wait failed")
			continue
		}

		for _, ev := range events {
			if ev.FD == lfd {
				s.acceptConnections()
			} else {
				s.handleEvent(ev)
			}
		}

		s.reapTimers()
		s.metrics.QueueDepth.Set(float64(s.pool.Depth()))
	}

	s.teardown()
	return nil
}

// Close stops the event loop and releases all connections.
func (s *Server) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	<-s.done
}

func (s *Server) teardown() {
	for _, c := range s.disp.snapshot() {
		s.closeConn(c)
	}
	s.pool.Shutdown(false)
	if s.listenFd >= 0 {
		unix.Close(s.listenFd)
	}
	s.poller.Close()
}

// acceptConnections drains the accept queue. Each new socket is made
// non-blocking, registered one-shot edge-triggered and given an idle
// timer.
func (s *Server) acceptConnections() {
	for {
		nfd, raddr, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR || err == unix.ECONNABORTED {
				continue
			}
			s.log.WithError(err).Error("accept failed")
			return
		}

		unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

		c := s.conns.Get().(*Conn)
		c.attach(nfd)

		if err := s.disp.register(c, connEvents); err != nil {
			s.log.WithError(err).WithField("fd", nfd).Error("register failed")
			unix.Close(nfd)
			s.conns.Put(c)
			continue
		}
		s.timers.Arm(c, s.idleTimeout)

		s.metrics.ConnectionsAccepted.Inc()
		s.metrics.ActiveConnections.Inc()

		if s.log.IsLevelEnabled(logrus.DebugLevel) {
			s.log.WithFields(logrus.Fields{
				"fd":     nfd,
				"remote": remoteString(raddr),
			}).Debug("connection accepted")
		}
	}
}

// handleEvent routes one readiness notification. The connection is
// pulled out of the registry before submission so a concurrent event
// cannot schedule it twice; the worker re-registers on completion.
func (s *Server) handleEvent(ev poller.Event) {
	c := s.disp.take(ev.FD)
	if c == nil {
		return
	}

	if ev.Events&(poller.EventError|poller.EventHangup) != 0 ||
		ev.Events&poller.EventReadable == 0 {
		s.closeConn(c)
		return
	}

	s.timers.Detach(c)

	err := s.pool.Submit(pools.Task{Run: s.driveTask, Arg: c})
	if err != nil {
		s.metrics.EventsDropped.Inc()
		s.log.WithError(err).WithField("fd", c.fd).Warn("dropping connection, worker queue unavailable")
		s.closeConn(c)
	}
}

func (s *Server) driveTask(arg any) {
	s.drive(arg.(*Conn))
}

func (s *Server) reapTimers() {
	victims := s.timers.ReapExpired()
	for _, c := range victims {
		s.metrics.TimersReaped.Inc()
		if s.log.IsLevelEnabled(logrus.DebugLevel) {
			s.log.WithField("fd", c.fd).Debug("idle connection reaped")
		}
		s.closeConn(c)
	}
}

// closeConn releases a connection exactly once: out of the registry
// and interest set, timer tombstoned, descriptor closed, object
// recycled.
func (s *Server) closeConn(c *Conn) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	s.disp.deregister(c.fd)
	s.timers.Detach(c)
	unix.Close(c.fd)
	s.metrics.ActiveConnections.Dec()
	s.conns.Put(c)
}

func socketBindListen(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}

	sa := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

func remoteString(sa unix.Sockaddr) string {
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return fmt.Sprintf("%d.%d.%d.%d:%d",
			in4.Addr[0], in4.Addr[1], in4.Addr[2], in4.Addr[3], in4.Port)
	}
	return "unknown"
}
