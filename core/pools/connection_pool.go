package pools

import (
	"sync"
	"sync/atomic"
)

// Poolable is implemented by connection objects that can be recycled
// across accepts.
type Poolable interface {
	Reset()
}

// ConnectionPool recycles connection objects so a busy accept loop does
// not allocate one per client.
type ConnectionPool struct {
	pool sync.Pool
	gets atomic.Uint64
	puts atomic.Uint64
}

// NewConnectionPool creates a new connection pool
func NewConnectionPool(newFunc func() any) *ConnectionPool {
	cp := &ConnectionPool{}
	cp.pool.New = newFunc
	return cp
}

// Get retrieves a connection object from the pool
func (cp *ConnectionPool) Get() any {
	cp.gets.Add(1)
	return cp.pool.Get()
}

// Put resets the object and returns it to the pool
func (cp *ConnectionPool) Put(obj any) {
	if p, ok := obj.(Poolable); ok {
		p.Reset()
	}
	cp.puts.Add(1)
	cp.pool.Put(obj)
}

// Stats returns get/put counters
func (cp *ConnectionPool) Stats() (gets, puts uint64) {
	return cp.gets.Load(), cp.puts.Load()
}
