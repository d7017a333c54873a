package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fumiama/rawget/dial"
	"github.com/fumiama/rawget/urlinfo"
)

var (
	ErrOversizedRequest = errors.New("request exceeds max size")
	ErrSendIncomplete   = errors.New("send incomplete")
	ErrReadFailure      = errors.New("read failure")
	ErrTooManyRedirects = errors.New("too many redirects")
)

// DefaultMaxRedirects is the hop limit of DefaultClient.
const DefaultMaxRedirects = 5

// Dialer opens the connection of one hop.
type Dialer interface {
	Dial(ctx context.Context, hostname, port string) (net.Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, hostname, port string) (net.Conn, error)

func (f DialerFunc) Dial(ctx context.Context, hostname, port string) (net.Conn, error) {
	return f(ctx, hostname, port)
}

// Client fetches a URL with a single GET per hop.
type Client struct {
	// Dialer defaults to dial.DefaultDialer.
	Dialer Dialer
	// Output defaults to os.Stdout.
	Output     io.Writer
	HeaderMode bool
	// MaxRedirects is the number of 301 hops followed. Zero disables
	// following and the 301 response is streamed as any other.
	MaxRedirects  int
	ChunkSize     int
	MaxHeaderSize int
}

var DefaultClient = Client{
	MaxRedirects: DefaultMaxRedirects,
}

// Get fetches raw and streams the response to the client's output.
// At most one connection is open at any time: the connection of a
// redirecting hop is closed before the next one is dialed.
func (c *Client) Get(ctx context.Context, raw string) error {
	u, err := urlinfo.Parse(raw)
	if err != nil {
		return err
	}
	log := logrus.WithField("run", uuid.NewString())
	for hop := 0; ; hop++ {
		hoplog := log.WithFields(logrus.Fields{
			"hop":  hop,
			"host": u.Hostname,
			"port": u.Port,
			"path": u.Path,
		})
		loc, err := c.fetch(ctx, u, hoplog)
		if err != nil || loc == "" {
			return err
		}
		if hop >= c.MaxRedirects {
			return fmt.Errorf("%w: stopped after %d hops at %s", ErrTooManyRedirects, hop, u)
		}
		hoplog.Debugln("301 redirect to", loc)
		u, err = urlinfo.Resolve(u, loc)
		if err != nil {
			return fmt.Errorf("bad redirect location %q: %w", loc, err)
		}
	}
}

// fetch runs one hop and returns the redirect location, if any.
func (c *Client) fetch(ctx context.Context, u urlinfo.URLInfo, log *logrus.Entry) (string, error) {
	req, err := BuildRequest(u.Hostname, u.Port, u.Path)
	if err != nil {
		return "", err
	}
	conn, err := c.dialer().Dial(ctx, u.Hostname, u.Port)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	log.Debugln("connected")
	if err = SendRequest(conn, req); err != nil {
		return "", err
	}
	s := Streamer{
		Output:         c.output(),
		HeaderMode:     c.HeaderMode,
		FollowRedirect: c.MaxRedirects > 0,
		ChunkSize:      c.ChunkSize,
		MaxHeaderSize:  c.MaxHeaderSize,
		Log:            log,
	}
	return s.Stream(conn)
}

func (c *Client) dialer() Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return &dial.DefaultDialer
}

func (c *Client) output() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	return os.Stdout
}

// Get fetches raw with DefaultClient.
func Get(raw string) error {
	return DefaultClient.Get(context.Background(), raw)
}
