package dial

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/FloatTech/ttl"
	"github.com/sirupsen/logrus"

	"github.com/fumiama/rawget/dns"
)

var (
	ErrConnectionFailure = errors.New("connection failure")
	ErrEmptyHostAddress  = errors.New("empty host addr")
)

// Resolver looks up the addresses of a host.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Dialer connects plain TCP streams to hostname:port.
//
// Resolved addresses are cached for CacheTTL, so redirect hops back to
// a host seen before skip the lookup. If Resolver fails, Fallback is
// asked next.
type Dialer struct {
	Timeout  time.Duration
	Resolver Resolver
	Fallback Resolver

	lookupTable *ttl.Cache[string, []string]
}

// New makes a Dialer whose lookups are cached for cachettl.
// A zero cachettl disables the cache.
func New(timeout, cachettl time.Duration, resolver, fallback Resolver) *Dialer {
	d := &Dialer{
		Timeout:  timeout,
		Resolver: resolver,
		Fallback: fallback,
	}
	if cachettl > 0 {
		d.lookupTable = ttl.NewCache[string, []string](cachettl)
	}
	return d
}

// DefaultDialer uses the system resolver and falls back to DNS over TLS.
var DefaultDialer = Dialer{
	Timeout:     time.Minute,
	Resolver:    net.DefaultResolver,
	Fallback:    dns.DefaultResolver,
	lookupTable: ttl.NewCache[string, []string](time.Hour),
}

func SetDefaultDialTimeout(t time.Duration) {
	DefaultDialer.Timeout = t
}

// Dial resolves hostname and tries each address in turn until one
// accepts a connection on port.
func (d *Dialer) Dial(ctx context.Context, hostname, port string) (net.Conn, error) {
	if d.Timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	addrs, err := d.lookup(ctx, hostname)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrConnectionFailure, hostname, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailure, hostname, ErrEmptyHostAddress)
	}
	var dialer net.Dialer
	for _, a := range addrs {
		var conn net.Conn
		conn, err = dialer.DialContext(ctx, "tcp", net.JoinHostPort(a, port))
		if err == nil {
			return conn, nil
		}
		logrus.WithError(err).Debugln("dial", a, "failed")
	}
	return nil, fmt.Errorf("%w: %w", ErrConnectionFailure, err)
}

func (d *Dialer) lookup(ctx context.Context, host string) (addrs []string, err error) {
	if net.ParseIP(host) != nil {
		return []string{host}, nil
	}
	if d.lookupTable != nil {
		addrs = d.lookupTable.Get(host)
		if len(addrs) > 0 {
			return
		}
	}
	r := d.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err = r.LookupHost(ctx, host)
	if err != nil && d.Fallback != nil {
		logrus.WithError(err).Debugln("lookup", host, "failed, trying fallback resolver")
		addrs, err = d.Fallback.LookupHost(ctx, host)
	}
	if err != nil {
		return nil, err
	}
	if d.lookupTable != nil && len(addrs) > 0 {
		d.lookupTable.Set(host, addrs)
	}
	return
}
