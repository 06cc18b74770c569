//go:build linux
// +build linux

package poller

import (
	"golang.org/x/sys/unix"
)

// Event bit sets used when arming descriptors.
const (
	// EventReadable fires when the socket has bytes to read.
	EventReadable = uint32(unix.EPOLLIN)
	// EventEdge switches the descriptor to edge-triggered notification.
	EventEdge = uint32(unix.EPOLLET)
	// EventOneShot disarms the descriptor after a single notification.
	// The descriptor stays in the interest set and must be re-armed
	// with Mod before the kernel reports it again.
	EventOneShot = uint32(unix.EPOLLONESHOT)
	// EventPeerClosed is reported when the peer shut down its write side.
	EventPeerClosed = uint32(unix.EPOLLRDHUP)
	// EventError and EventHangup are reported unconditionally.
	EventError  = uint32(unix.EPOLLERR)
	EventHangup = uint32(unix.EPOLLHUP)
)

// EpollPoller is an epoll-based I/O multiplexer
type EpollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

// NewPoller creates a new Poller (Linux)
func NewPoller(maxEvents int) (Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 1024
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	return &EpollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

// Add registers a file descriptor with the given event set
func (p *EpollPoller) Add(fd int, events uint32) error {
	ev := unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	}

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Mod replaces the event set of a registered descriptor. This is how a
// one-shot descriptor gets re-armed after its notification fired.
func (p *EpollPoller) Mod(fd int, events uint32) error {
	ev := unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	}

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Del removes a file descriptor from the interest set
func (p *EpollPoller) Del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks for I/O events for up to timeout milliseconds.
// A negative timeout blocks indefinitely.
func (p *EpollPoller) Wait(timeout int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeout)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	if n <= 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Event{FD: int(p.events[i].Fd), Events: p.events[i].Events})
	}

	return out, nil
}

// Close closes the Poller
func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}

// SetNonblock sets non-blocking mode
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
