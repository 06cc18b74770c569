package http

import (
	"golang.org/x/sys/unix"
)

// Response accumulates a wire-format response. The status line, each
// header and the body are appended to one buffer which is then pushed
// out with Writen in as few writes as possible.
type Response struct {
	buf []byte
}

// NewResponse wraps buf (may be nil) as the response scratch space.
func NewResponse(buf []byte) *Response {
	return &Response{buf: buf[:0]}
}

// StatusLine appends "HTTP/1.1 <code> <reason>\r\n".
func (r *Response) StatusLine(code int, reason string) {
	r.buf = append(r.buf, "HTTP/1.1 "...)
	r.buf = appendInt(r.buf, code)
	r.buf = append(r.buf, ' ')
	r.buf = append(r.buf, reason...)
	r.buf = append(r.buf, crlf...)
}

// Header appends one header line.
func (r *Response) Header(name, value string) {
	r.buf = append(r.buf, name...)
	r.buf = append(r.buf, ": "...)
	r.buf = append(r.buf, value...)
	r.buf = append(r.buf, crlf...)
}

// HeaderInt appends one header line with a numeric value.
func (r *Response) HeaderInt(name string, value int) {
	r.buf = append(r.buf, name...)
	r.buf = append(r.buf, ": "...)
	r.buf = appendInt(r.buf, value)
	r.buf = append(r.buf, crlf...)
}

// EndHeaders appends the blank line terminating the header block.
func (r *Response) EndHeaders() {
	r.buf = append(r.buf, crlf...)
}

// Body appends raw body bytes.
func (r *Response) Body(b []byte) {
	r.buf = append(r.buf, b...)
}

// Bytes returns the accumulated wire bytes.
func (r *Response) Bytes() []byte {
	return r.buf
}

// Flush writes the accumulated response to fd.
func (r *Response) Flush(fd int) error {
	n, err := Writen(fd, r.buf)
	if err != nil {
		return err
	}
	if n != len(r.buf) {
		return unix.EIO
	}
	return nil
}

// Writen writes all of b to the non-blocking descriptor fd, resuming
// short writes and retrying on EINTR and EAGAIN.
func Writen(fd int, b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := unix.Write(fd, b[written:])
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return written, err
		}
		if n == 0 {
			break
		}
		written += n
	}
	return written, nil
}

// appendInt appends the decimal form of i without allocating.
func appendInt(b []byte, i int) []byte {
	if i == 0 {
		return append(b, '0')
	}

	if i < 0 {
		b = append(b, '-')
		i = -i
	}

	var digits [20]byte
	n := 0
	for i > 0 {
		digits[n] = byte('0' + i%10)
		i /= 10
		n++
	}

	for n > 0 {
		n--
		b = append(b, digits[n])
	}

	return b
}
