package core

import (
	"sync"

	"github.com/searchktools/surge-server/core/poller"
)

// connEvents is the arming mode for client sockets: one readiness
// notification per arm cycle, edge-triggered, so at most one worker
// ever holds a given connection.
const connEvents = poller.EventReadable | poller.EventEdge | poller.EventOneShot

// dispatcher pairs the poller with the fd registry. register, rearm and
// deregister mutate registry and kernel interest set together; take
// removes only the registry entry, leaving the fired one-shot descriptor
// disarmed in the interest set. A connection absent from the registry
// cannot be scheduled no matter what the kernel still reports.
type dispatcher struct {
	poller poller.Poller

	mu    sync.RWMutex
	conns map[int]*Conn
}

func newDispatcher(p poller.Poller) *dispatcher {
	return &dispatcher{
		poller: p,
		conns:  make(map[int]*Conn, 1024),
	}
}

// register inserts the connection and arms its descriptor.
func (d *dispatcher) register(c *Conn, events uint32) error {
	d.mu.Lock()
	d.conns[c.fd] = c
	d.mu.Unlock()

	if err := d.poller.Add(c.fd, events); err != nil {
		d.mu.Lock()
		delete(d.conns, c.fd)
		d.mu.Unlock()
		return err
	}
	return nil
}

// rearm re-publishes the connection after a worker round and re-arms
// the one-shot descriptor.
func (d *dispatcher) rearm(c *Conn, events uint32) error {
	d.mu.Lock()
	d.conns[c.fd] = c
	d.mu.Unlock()

	if err := d.poller.Mod(c.fd, events); err != nil {
		d.mu.Lock()
		delete(d.conns, c.fd)
		d.mu.Unlock()
		return err
	}
	return nil
}

// take removes and returns the connection for fd, or nil.
func (d *dispatcher) take(fd int) *Conn {
	d.mu.Lock()
	c, ok := d.conns[fd]
	if ok {
		delete(d.conns, fd)
	}
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return c
}

// deregister removes fd from the registry and the kernel interest set.
// Idempotent: a second call, or one for a never-registered fd, is a
// no-op.
func (d *dispatcher) deregister(fd int) {
	d.mu.Lock()
	delete(d.conns, fd)
	d.mu.Unlock()

	// ENOENT here just means the fd was already disarmed.
	_ = d.poller.Del(fd)
}

// snapshot returns all registered connections, for shutdown.
func (d *dispatcher) snapshot() []*Conn {
	d.mu.RLock()
	out := make([]*Conn, 0, len(d.conns))
	for _, c := range d.conns {
		out = append(out, c)
	}
	d.mu.RUnlock()
	return out
}
