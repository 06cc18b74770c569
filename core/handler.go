package core

import (
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/searchktools/surge-server/core/content"
	"github.com/searchktools/surge-server/core/http"
	"github.com/searchktools/surge-server/core/mime"
)

type driveStatus int

const (
	// driveYield: the connection waits for more bytes; re-arm it.
	driveYield driveStatus = iota
	// driveDone: the request finished and the connection is not kept.
	driveDone
	// driveFatal: parse or I/O failure; close without a response
	// unless one was already written.
	driveFatal
)

// drive runs the parser against one connection until it either needs
// more data, finishes, or fails. Exactly one worker at a time executes
// this for a given connection.
func (s *Server) drive(c *Conn) {
	scratch := s.bytes.Get(readChunk)
	st := s.process(c, scratch)
	s.bytes.Put(scratch)

	if st == driveYield {
		s.keep(c)
		return
	}
	s.closeConn(c)
}

// keep re-arms a connection that survives the round. The fresh timer
// must be installed before the dispatcher is re-armed: the inverse
// order lets a racing readable event run a full worker round against a
// connection the reaper is still allowed to free.
func (s *Server) keep(c *Conn) {
	s.timers.Arm(c, s.idleTimeout)
	if err := s.disp.rearm(c, connEvents); err != nil {
		s.log.WithError(err).WithField("fd", c.fd).Error("rearm failed")
		s.closeConn(c)
	}
}

type fillResult int

const (
	fillProgress fillResult = iota
	fillYield
	fillFatal
)

// fill reads everything currently available on the socket into the
// connection buffer. An empty read is charged against the strike
// budget; a read of zero bytes means the peer is gone.
func (s *Server) fill(c *Conn, scratch []byte) fillResult {
	total := 0
	for {
		n, err := unix.Read(c.fd, scratch)
		if n > 0 {
			c.buf = append(c.buf, scratch[:n]...)
			total += n
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if total > 0 {
				c.emptyReads = 0
				return fillProgress
			}
			if c.emptyReads > emptyReadBudget {
				return fillFatal
			}
			c.emptyReads++
			return fillYield
		}
		if err != nil {
			return fillFatal
		}
		// n == 0: peer closed. Whatever is buffered either completes
		// a request on this pass or never will.
		if total > 0 {
			return fillProgress
		}
		return fillFatal
	}
}

// process advances the connection state machine as far as the buffered
// bytes allow, reading more whenever a phase reports it is starved.
func (s *Server) process(c *Conn, scratch []byte) driveStatus {
	for {
		switch c.phase {
		case phaseRequestLine:
			consumed, res := c.parser.ParseRequestLine(c.buf)
			switch res {
			case http.Complete:
				c.buf = c.buf[consumed:]
				c.phase = phaseHeaders
			case http.NeedMore:
				switch s.fill(c, scratch) {
				case fillYield:
					return driveYield
				case fillFatal:
					return driveFatal
				}
			case http.Malformed:
				s.metrics.ParseErrors.Inc()
				return driveFatal
			}

		case phaseHeaders:
			consumed, res := c.parser.ParseHeaders(c.buf)
			c.buf = c.buf[consumed:]
			switch res {
			case http.Complete:
				if c.parser.Req.Method == http.MethodPost {
					c.phase = phaseBody
				} else {
					c.phase = phaseAnalyze
				}
			case http.NeedMore:
				switch s.fill(c, scratch) {
				case fillYield:
					return driveYield
				case fillFatal:
					return driveFatal
				}
			case http.Malformed:
				s.metrics.ParseErrors.Inc()
				return driveFatal
			}

		case phaseBody:
			n, ok := c.parser.Req.ContentLength()
			if !ok {
				s.metrics.ParseErrors.Inc()
				return driveFatal
			}
			c.contentLen = n
			if len(c.buf) < n {
				switch s.fill(c, scratch) {
				case fillYield:
					return driveYield
				case fillFatal:
					return driveFatal
				}
			} else {
				c.phase = phaseAnalyze
			}

		case phaseAnalyze:
			if !s.respond(c) {
				return driveFatal
			}
			c.phase = phaseFinish

		case phaseFinish:
			if !c.keepAlive {
				return driveDone
			}
			if c.parser.Req.Method == http.MethodPost {
				c.buf = c.buf[c.contentLen:]
			}
			c.resetRound()
			if len(c.buf) == 0 {
				return driveYield
			}
			// Pipelined bytes already buffered: parse the next
			// request now instead of waiting for an event that
			// will never fire under edge triggering.
		}
	}
}

// respond produces and writes the response for the parsed request.
// A false return closes the connection.
func (s *Server) respond(c *Conn) bool {
	req := &c.parser.Req
	c.keepAlive = req.KeepAlive()
	s.metrics.RequestsTotal.WithLabelValues(req.Method.String()).Inc()

	if s.log.IsLevelEnabled(logrus.DebugLevel) {
		s.log.WithFields(logrus.Fields{
			"fd":     c.fd,
			"method": req.Method.String(),
			"target": req.Target,
		}).Debug("processing request")
	}

	switch req.Method {
	case http.MethodGet:
		return s.serveFile(c)
	case http.MethodPost:
		return s.acceptUpload(c)
	}
	return false
}

// serveFile answers a GET from the server root: status and headers
// first, then the memory-mapped file body.
func (s *Server) serveFile(c *Conn) bool {
	req := &c.parser.Req
	path := filepath.Join(s.root, req.Target)

	size, err := content.Stat(path)
	if err != nil {
		s.writeNotFound(c)
		return false
	}

	buf := s.bytes.Get(respBufSize)
	defer s.bytes.Put(buf)

	resp := http.NewResponse(buf)
	resp.StatusLine(200, "OK")
	if c.keepAlive {
		resp.Header("Connection", "keep-alive")
		resp.Header("Keep-Alive", keepAliveParam)
	}
	resp.Header("Content-type", mime.TypeByName(req.Target))
	resp.HeaderInt("Content-length", int(size))
	resp.EndHeaders()
	if err := resp.Flush(c.fd); err != nil {
		s.log.WithError(err).WithField("fd", c.fd).Warn("send header failed")
		return false
	}

	data, unmap, err := content.Map(path, size)
	if err != nil {
		s.log.WithError(err).WithField("path", path).Error("map file failed")
		return false
	}
	defer unmap()

	n, err := http.Writen(c.fd, data)
	if err != nil || n != len(data) {
		s.log.WithError(err).WithField("fd", c.fd).Warn("send file failed")
		return false
	}

	s.metrics.ResponsesTotal.WithLabelValues("200").Inc()
	if s.log.IsLevelEnabled(logrus.DebugLevel) {
		s.log.WithFields(logrus.Fields{
			"fd":     c.fd,
			"target": req.Target,
			"bytes":  size,
		}).Debug("response sent")
	}
	return true
}

// ackBody is the fixed POST acknowledgement. The misspelling is part
// of the wire contract and must not be corrected.
const ackBody = "I have receiced this."

// acceptUpload answers a POST: acknowledge immediately, then hand the
// body to the sink so the client never waits on decoding.
func (s *Server) acceptUpload(c *Conn) bool {
	body := c.buf[:c.contentLen]

	buf := s.bytes.Get(respBufSize)
	defer s.bytes.Put(buf)

	resp := http.NewResponse(buf)
	resp.StatusLine(200, "OK")
	if c.keepAlive {
		resp.Header("Connection", "keep-alive")
		resp.Header("Keep-Alive", keepAliveParam)
	}
	resp.HeaderInt("Content-length", len(ackBody))
	resp.EndHeaders()
	resp.Body([]byte(ackBody))
	if err := resp.Flush(c.fd); err != nil {
		s.log.WithError(err).WithField("fd", c.fd).Warn("send ack failed")
		return false
	}
	s.metrics.ResponsesTotal.WithLabelValues("200").Inc()

	if s.sink != nil {
		if err := s.sink.Accept(body); err != nil {
			s.log.WithError(err).Warn("body sink failed")
		}
	}
	return true
}

// writeNotFound emits the minimal 404 page. The connection always
// closes afterwards.
func (s *Server) writeNotFound(c *Conn) {
	body := "<html><title>Surge Error</title><body bgcolor=\"ffffff\">" +
		"404 Not Found!<hr><em> Surge Web Server</em></body></html>"

	buf := s.bytes.Get(respBufSize)
	defer s.bytes.Put(buf)

	resp := http.NewResponse(buf)
	resp.StatusLine(404, "Not Found!")
	resp.Header("Content-type", "text/html")
	resp.Header("Connection", "close")
	resp.HeaderInt("Content-length", len(body))
	resp.EndHeaders()
	resp.Body([]byte(body))
	if err := resp.Flush(c.fd); err != nil {
		s.log.WithError(err).WithField("fd", c.fd).Warn("send 404 failed")
	}
	s.metrics.ResponsesTotal.WithLabelValues("404").Inc()
}
