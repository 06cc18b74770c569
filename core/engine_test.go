package core

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/surge-server/core/content"
)

func startServer(t *testing.T, root string, opts ...func(*Options)) *Server {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	o := Options{
		Port:   0,
		Root:   root,
		Logger: log,
		Sink:   content.NewImageSink(filepath.Join(root, "receive.bmp"), log),
	}
	for _, f := range opts {
		f(&o)
	}

	s := New(o)
	go s.Run()

	deadline := time.Now().Add(2 * time.Second)
	for s.Port() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Cleanup(s.Close)
	return s
}

func dialServer(t *testing.T, s *Server) net.Conn {
	t.Helper()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", s.Port()))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireResponse struct {
	status  string
	headers map[string]string
	body    string
}

func readResponse(t *testing.T, r *bufio.Reader) wireResponse {
	t.Helper()

	status, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}

	resp := wireResponse{
		status:  strings.TrimRight(status, "\r\n"),
		headers: make(map[string]string),
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read header line: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			t.Fatalf("malformed header line %q", line)
		}
		resp.headers[strings.ToLower(name)] = value
	}

	n, _ := strconv.Atoi(resp.headers["content-length"])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.body = string(body)
	return resp
}

func writeTestFile(t *testing.T, root, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGetExistingFile(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "hello.txt", "hi\n")
	s := startServer(t, root)

	conn := dialServer(t, s)
	fmt.Fprintf(conn, "GET /hello.txt HTTP/1.1\r\nHost: x\r\n\r\n")

	resp := readResponse(t, bufio.NewReader(conn))
	if resp.status != "HTTP/1.1 200 OK" {
		t.Errorf("status = %q", resp.status)
	}
	if ct := resp.headers["content-type"]; ct != "text/plain" {
		t.Errorf("content-type = %q, want text/plain", ct)
	}
	if cl := resp.headers["content-length"]; cl != "3" {
		t.Errorf("content-length = %q, want 3", cl)
	}
	if resp.body != "hi\n" {
		t.Errorf("body = %q, want %q", resp.body, "hi\n")
	}
}

func TestGetMissingFile(t *testing.T) {
	root := t.TempDir()
	s := startServer(t, root)

	conn := dialServer(t, s)
	fmt.Fprintf(conn, "GET /nope HTTP/1.1\r\n\r\n")

	r := bufio.NewReader(conn)
	resp := readResponse(t, r)
	if !strings.Contains(resp.status, "404") {
		t.Errorf("status = %q, want 404", resp.status)
	}
	if !strings.Contains(resp.body, "404 Not Found!") {
		t.Errorf("body = %q, want it to contain %q", resp.body, "404 Not Found!")
	}

	// The connection closes after an error response.
	if _, err := r.ReadByte(); err != io.EOF {
		t.Errorf("expected EOF after 404, got %v", err)
	}
}

func TestGetDefaultIndex(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "index.html", "<p>ok</p>")
	s := startServer(t, root)

	conn := dialServer(t, s)
	fmt.Fprintf(conn, "GET / HTTP/1.1\r\n\r\n")

	resp := readResponse(t, bufio.NewReader(conn))
	if resp.status != "HTTP/1.1 200 OK" {
		t.Errorf("status = %q", resp.status)
	}
	if ct := resp.headers["content-type"]; ct != "text/html" {
		t.Errorf("content-type = %q, want text/html", ct)
	}
	if resp.body != "<p>ok</p>" {
		t.Errorf("body = %q", resp.body)
	}
}

func TestPostAckAndSink(t *testing.T) {
	root := t.TempDir()
	s := startServer(t, root)

	conn := dialServer(t, s)
	fmt.Fprintf(conn, "POST /x HTTP/1.1\r\nContent-length: 5\r\n\r\nABCDE")

	resp := readResponse(t, bufio.NewReader(conn))
	if resp.status != "HTTP/1.1 200 OK" {
		t.Errorf("status = %q", resp.status)
	}
	if resp.body != "I have receiced this." {
		t.Errorf("body = %q", resp.body)
	}

	// The sink runs after the ack; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	path := filepath.Join(root, "receive.bmp")
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("receive.bmp was never written")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestKeepAliveSerialRequests(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.txt", "A")
	s := startServer(t, root)

	conn := dialServer(t, s)
	r := bufio.NewReader(conn)

	for i := 0; i < 2; i++ {
		fmt.Fprintf(conn, "GET /a.txt HTTP/1.1\r\nConnection: keep-alive\r\n\r\n")

		resp := readResponse(t, r)
		if resp.status != "HTTP/1.1 200 OK" {
			t.Fatalf("round %d: status = %q", i, resp.status)
		}
		if got := resp.headers["connection"]; got != "keep-alive" {
			t.Errorf("round %d: Connection = %q", i, got)
		}
		if got := resp.headers["keep-alive"]; got != "timeout=500" {
			t.Errorf("round %d: Keep-Alive = %q", i, got)
		}
		if resp.body != "A" {
			t.Errorf("round %d: body = %q", i, resp.body)
		}
	}
}

func TestPipelinedRequests(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.txt", "A")
	s := startServer(t, root)

	conn := dialServer(t, s)
	req := "GET /a.txt HTTP/1.1\r\nConnection: keep-alive\r\n\r\n"
	if _, err := conn.Write([]byte(req + req)); err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(conn)
	for i := 0; i < 2; i++ {
		resp := readResponse(t, r)
		if resp.status != "HTTP/1.1 200 OK" {
			t.Fatalf("response %d: status = %q", i, resp.status)
		}
		if resp.body != "A" {
			t.Errorf("response %d: body = %q", i, resp.body)
		}
	}
}

func TestIdleConnectionReaped(t *testing.T) {
	root := t.TempDir()
	s := startServer(t, root, func(o *Options) {
		o.IdleTimeout = 200 * time.Millisecond
	})

	conn := dialServer(t, s)

	// Send nothing; the idle window plus one dispatcher wake must
	// close the socket.
	time.Sleep(600 * time.Millisecond)

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err != io.EOF {
		t.Errorf("expected EOF from reaped connection, got %v", err)
	}
}

func TestMalformedRequestClosesSilently(t *testing.T) {
	root := t.TempDir()
	s := startServer(t, root)

	conn := dialServer(t, s)
	fmt.Fprintf(conn, "BOGUS METHOD\r\n\r\n")

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err != io.EOF {
		t.Errorf("expected silent close, got %v", err)
	}
}

func TestSlowClientSurvivesWithinWindow(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.txt", "A")
	s := startServer(t, root, func(o *Options) {
		o.IdleTimeout = 300 * time.Millisecond
	})

	conn := dialServer(t, s)

	// Drip the request so each chunk lands inside a fresh idle window.
	req := "GET /a.txt HTTP/1.1\r\n\r\n"
	for i := 0; i < len(req); i += 4 {
		end := i + 4
		if end > len(req) {
			end = len(req)
		}
		if _, err := conn.Write([]byte(req[i:end])); err != nil {
			t.Fatal(err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	resp := readResponse(t, bufio.NewReader(conn))
	if resp.status != "HTTP/1.1 200 OK" {
		t.Errorf("status = %q", resp.status)
	}
	if resp.body != "A" {
		t.Errorf("body = %q", resp.body)
	}
}
