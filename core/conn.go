package core

import (
	"sync/atomic"

	"github.com/searchktools/surge-server/core/http"
)

type phase uint8

const (
	phaseRequestLine phase = iota
	phaseHeaders
	phaseBody
	phaseAnalyze
	phaseFinish
)

// Conn is one client connection. It is mutated only by the worker
// currently driving it, or by the accept goroutine closing it on timer
// expiry; the one-shot rearm protocol guarantees the two never overlap.
type Conn struct {
	fd int

	// buf holds the unparsed suffix of the byte stream. Parsed bytes
	// are dropped from its head as phases complete.
	buf []byte

	parser     http.Parser
	phase      phase
	keepAlive  bool
	contentLen int

	// emptyReads counts consecutive reads that returned no data.
	emptyReads int

	// timer points at the current timer entry. It is non-owning and,
	// while the connection is open, only touched under the timer set
	// mutex; Reset clears it after close. A tombstoned entry left in the
	// heap is expected.
	timer *timerEntry

	closed atomic.Bool
}

func newConn() *Conn {
	return &Conn{fd: -1}
}

// attach binds an accepted descriptor to a (possibly recycled) Conn.
func (c *Conn) attach(fd int) {
	c.fd = fd
	c.closed.Store(false)
}

// resetRound clears per-request state between keep-alive rounds.
// The descriptor and any pipelined leftover bytes survive.
func (c *Conn) resetRound() {
	c.parser.Reset()
	c.phase = phaseRequestLine
	c.keepAlive = false
	c.contentLen = 0
	c.emptyReads = 0
}

// Reset makes the Conn reusable for a future accept.
func (c *Conn) Reset() {
	c.fd = -1
	c.buf = nil
	c.parser.Reset()
	c.phase = phaseRequestLine
	c.keepAlive = false
	c.contentLen = 0
	c.emptyReads = 0
	c.timer = nil
}
