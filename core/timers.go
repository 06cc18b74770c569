package core

import (
	"container/heap"
	"sync"
	"time"
)

// timerEntry schedules the forced close of an idle connection. The
// heap may hold entries whose connection was re-armed or closed since;
// the deleted tombstone, not heap membership, is the source of truth.
type timerEntry struct {
	deadline int64
	deleted  bool
	conn     *Conn
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline < h[j].deadline }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)        { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

var bootTime = time.Now()

func nowMillis() int64 {
	return time.Since(bootTime).Milliseconds()
}

// TimerSet is the min-heap of idle deadlines, reaped by the accept
// goroutine after each poller wait.
type TimerSet struct {
	mu   sync.Mutex
	heap timerHeap
	now  func() int64
}

// NewTimerSet creates an empty timer set on the monotonic clock.
func NewTimerSet() *TimerSet {
	return &TimerSet{now: nowMillis}
}

// Arm schedules the connection to be reaped after d. Any previous
// entry for the connection is tombstoned before the new one is
// published, so at most one live entry references it at a time.
func (ts *TimerSet) Arm(c *Conn, d time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if c.timer != nil {
		c.timer.deleted = true
		c.timer.conn = nil
	}

	e := &timerEntry{
		deadline: ts.now() + d.Milliseconds(),
		conn:     c,
	}
	heap.Push(&ts.heap, e)
	c.timer = e
}

// Detach tombstones the connection's current entry, if any. Called
// when a readable event hands the connection to a worker, and on
// close. The stale entry stays in the heap until reaped.
func (ts *TimerSet) Detach(c *Conn) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if c.timer != nil {
		c.timer.deleted = true
		c.timer.conn = nil
		c.timer = nil
	}
}

// ReapExpired pops tombstoned and expired entries off the heap top and
// returns the connections whose deadline genuinely passed. The caller
// closes them outside the timer mutex.
func (ts *TimerSet) ReapExpired() []*Conn {
	var victims []*Conn

	ts.mu.Lock()
	now := ts.now()
	for len(ts.heap) > 0 {
		top := ts.heap[0]
		if top.deleted {
			heap.Pop(&ts.heap)
			continue
		}
		if top.deadline < now {
			heap.Pop(&ts.heap)
			top.deleted = true
			if c := top.conn; c != nil {
				top.conn = nil
				c.timer = nil
				victims = append(victims, c)
			}
			continue
		}
		break
	}
	ts.mu.Unlock()

	return victims
}

// Len returns the heap size including tombstoned entries.
func (ts *TimerSet) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.heap)
}
