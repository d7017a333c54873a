package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fumiama/rawget/dial"
	"github.com/fumiama/rawget/urlinfo"
)

type fakeConn struct {
	net.Conn
	r      io.Reader
	sent   bytes.Buffer
	closed bool
}

func (c *fakeConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *fakeConn) Write(p []byte) (int, error) { return c.sent.Write(p) }
func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// fakeNet answers each host:port with a canned response.
type fakeNet struct {
	t         *testing.T
	responses map[string]string
	dialed    []string
	conns     []*fakeConn
}

func (n *fakeNet) Dial(_ context.Context, hostname, port string) (net.Conn, error) {
	for _, c := range n.conns {
		if !c.closed {
			n.t.Fatal("dial with a connection still open")
		}
	}
	addr := hostname + ":" + port
	n.dialed = append(n.dialed, addr)
	resp, ok := n.responses[addr]
	if !ok {
		return nil, dial.ErrConnectionFailure
	}
	c := &fakeConn{r: strings.NewReader(resp)}
	n.conns = append(n.conns, c)
	return c, nil
}

func TestClientGet(t *testing.T) {
	fn := &fakeNet{t: t, responses: map[string]string{
		"example.com:80": okResponse,
	}}
	var out bytes.Buffer
	c := Client{Dialer: fn, Output: &out}
	if err := c.Get(context.Background(), "http://example.com/index.html"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello world" {
		t.Fatalf("out %q", out.String())
	}
	want := "GET /index.html HTTP/1.1\r\nHost: example.com:80\r\nConnection: close\r\n\r\n"
	if fn.conns[0].sent.String() != want {
		t.Fatalf("sent %q", fn.conns[0].sent.String())
	}
	if !fn.conns[0].closed {
		t.Fatal("connection left open")
	}
}

func TestClientFollowsRedirect(t *testing.T) {
	fn := &fakeNet{t: t, responses: map[string]string{
		"old.test:80":   "HTTP/1.1 301 Moved Permanently\r\nLocation: http://new.test:8080/b\r\n\r\nmoved",
		"new.test:8080": okResponse,
	}}
	var out bytes.Buffer
	c := Client{Dialer: fn, Output: &out, MaxRedirects: DefaultMaxRedirects}
	if err := c.Get(context.Background(), "old.test/a"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"old.test:80", "new.test:8080"}, fn.dialed); diff != "" {
		t.Fatal(diff)
	}
	if !strings.HasPrefix(fn.conns[0].sent.String(), "GET /a HTTP/1.1\r\n") {
		t.Fatalf("first request %q", fn.conns[0].sent.String())
	}
	if !strings.HasPrefix(fn.conns[1].sent.String(), "GET /b HTTP/1.1\r\nHost: new.test:8080\r\n") {
		t.Fatalf("second request %q", fn.conns[1].sent.String())
	}
	if out.String() != "hello world" {
		t.Fatalf("out %q", out.String())
	}
}

func TestClientRelativeRedirect(t *testing.T) {
	fn := &fakeNet{t: t, responses: map[string]string{
		"site.test:8000": "HTTP/1.1 301 Moved Permanently\r\nLocation: /there\r\n\r\n",
	}}
	c := Client{Dialer: fn, Output: io.Discard, MaxRedirects: 1}
	err := c.Get(context.Background(), "site.test:8000/here")
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatal("want ErrTooManyRedirects, got", err)
	}
	if len(fn.conns) != 2 || !strings.HasPrefix(fn.conns[1].sent.String(), "GET /there ") {
		t.Fatal("relative location not followed on the same host")
	}
}

func TestClientRedirectLoop(t *testing.T) {
	fn := &fakeNet{t: t, responses: map[string]string{
		"loop.test:80": "HTTP/1.1 301 Moved Permanently\r\nLocation: http://loop.test/\r\n\r\n",
	}}
	c := Client{Dialer: fn, Output: io.Discard, MaxRedirects: 3}
	err := c.Get(context.Background(), "loop.test")
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatal("want ErrTooManyRedirects, got", err)
	}
	if len(fn.dialed) != 4 {
		t.Fatal("dialed", len(fn.dialed), "times")
	}
}

func TestClientRedirectDisabled(t *testing.T) {
	fn := &fakeNet{t: t, responses: map[string]string{
		"old.test:80": "HTTP/1.1 301 Moved Permanently\r\nLocation: http://new.test/\r\n\r\nmoved",
	}}
	var out bytes.Buffer
	c := Client{Dialer: fn, Output: &out}
	if err := c.Get(context.Background(), "old.test"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "moved" || len(fn.dialed) != 1 {
		t.Fatalf("out %q dialed %v", out.String(), fn.dialed)
	}
}

func TestClientBadRedirect(t *testing.T) {
	fn := &fakeNet{t: t, responses: map[string]string{
		"old.test:80": "HTTP/1.1 301 Moved Permanently\r\nLocation: http://new.test:port/\r\n\r\n",
	}}
	c := Client{Dialer: fn, Output: io.Discard, MaxRedirects: 1}
	err := c.Get(context.Background(), "old.test")
	if !errors.Is(err, urlinfo.ErrMalformedURL) {
		t.Fatal("want ErrMalformedURL, got", err)
	}
}

func TestClientErrors(t *testing.T) {
	fn := &fakeNet{t: t}
	c := Client{Dialer: fn, Output: io.Discard}

	err := c.Get(context.Background(), "")
	if !errors.Is(err, urlinfo.ErrMalformedURL) {
		t.Fatal("want ErrMalformedURL, got", err)
	}

	err = c.Get(context.Background(), "nowhere.test")
	if !errors.Is(err, dial.ErrConnectionFailure) {
		t.Fatal("want ErrConnectionFailure, got", err)
	}

	err = c.Get(context.Background(), "big.test/"+strings.Repeat("a", MaxRequestSize))
	if !errors.Is(err, ErrOversizedRequest) {
		t.Fatal("want ErrOversizedRequest, got", err)
	}
	if len(fn.dialed) != 1 {
		t.Fatal("dialed for an oversized request")
	}
}

func TestClientSendIncomplete(t *testing.T) {
	c := Client{
		Dialer: DialerFunc(func(context.Context, string, string) (net.Conn, error) {
			return &stuckConn{}, nil
		}),
		Output: io.Discard,
	}
	err := c.Get(context.Background(), "example.com")
	if !errors.Is(err, ErrSendIncomplete) {
		t.Fatal("want ErrSendIncomplete, got", err)
	}
}

type stuckConn struct{ fakeConn }

func (*stuckConn) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestClientLocalServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	reqs := make(chan string, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		var got []byte
		for !bytes.Contains(got, []byte("\r\n\r\n")) {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			got = append(got, buf[:n]...)
		}
		reqs <- string(got)
		_, _ = conn.Write([]byte(okResponse))
	}()
	var out bytes.Buffer
	c := Client{Dialer: dial.New(0, 0, nil, nil), Output: &out}
	if err := c.Get(context.Background(), "http://"+l.Addr().String()+"/local"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello world" {
		t.Fatalf("out %q", out.String())
	}
	if r := <-reqs; !strings.HasPrefix(r, "GET /local HTTP/1.1\r\n") {
		t.Fatalf("server got %q", r)
	}
}
