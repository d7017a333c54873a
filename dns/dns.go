package dns

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fumiama/rawget/ip"
)

var (
	ErrNoDNSAvailable = errors.New("no dns available")
)

var DefaultDialer = net.Dialer{
	Timeout: time.Second * 8,
}

// dotserver is one DoT endpoint. Lookups run A and AAAA queries in
// parallel, so down is flipped without holding the list lock.
type dotserver struct {
	name string
	addr string
	down atomic.Bool
}

// DNSList holds DNS over TLS servers keyed by their TLS server name.
type DNSList struct {
	sync.RWMutex
	m map[string][]*dotserver
}

// NewDNSList makes a list from TLS server names to host:port addresses.
func NewDNSList(servers map[string][]string) *DNSList {
	ds := &DNSList{}
	ds.Add(servers)
	return ds
}

func contains(lst []*dotserver, addr string) bool {
	for _, s := range lst {
		if s.addr == addr {
			return true
		}
	}
	return false
}

// Add merges servers into ds, skipping addresses already present.
func (ds *DNSList) Add(servers map[string][]string) {
	if len(servers) == 0 {
		return
	}
	ds.Lock()
	defer ds.Unlock()
	if ds.m == nil {
		ds.m = make(map[string][]*dotserver, len(servers))
	}
	for name, addrs := range servers {
		for _, addr := range addrs {
			if !contains(ds.m[name], addr) {
				ds.m[name] = append(ds.m[name], &dotserver{name: name, addr: addr})
			}
		}
	}
}

// Servers lists the addresses still enabled for host.
func (ds *DNSList) Servers(host string) []string {
	ds.RLock()
	defer ds.RUnlock()
	var addrs []string
	for _, s := range ds.m[host] {
		if !s.down.Load() {
			addrs = append(addrs, s.addr)
		}
	}
	return addrs
}

// alive snapshots the enabled servers so dialing runs unlocked.
func (ds *DNSList) alive() []*dotserver {
	ds.RLock()
	defer ds.RUnlock()
	var lst []*dotserver
	for _, servers := range ds.m {
		for _, s := range servers {
			if !s.down.Load() {
				lst = append(lst, s)
			}
		}
	}
	return lst
}

// DialContext returns a TLS connection to the first server that
// completes a handshake. Servers that fail are disabled.
func (ds *DNSList) DialContext(ctx context.Context, dialer *net.Dialer) (*tls.Conn, error) {
	if dialer == nil {
		dialer = &DefaultDialer
	}
	if dialer.Timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dialer.Timeout)
		defer cancel()
	}
	if !dialer.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, dialer.Deadline)
		defer cancel()
	}

	err := ErrNoDNSAvailable
	for _, s := range ds.alive() {
		var conn net.Conn
		conn, err = dialer.DialContext(ctx, "tcp", s.addr)
		if err != nil {
			s.down.Store(true)
			continue
		}
		tlsConn := tls.Client(conn, &tls.Config{ServerName: s.name})
		if err = tlsConn.HandshakeContext(ctx); err == nil {
			return tlsConn, nil
		}
		_ = tlsConn.Close()
		s.down.Store(true)
	}
	return nil, err
}

var IPv6Servers = NewDNSList(map[string][]string{
	"dot.sb":             {"[2a09::]:853", "[2a11::]:853"},
	"dns.google":         {"[2001:4860:4860::8888]:853", "[2001:4860:4860::8844]:853"},
	"cloudflare-dns.com": {"[2606:4700:4700::1111]:853", "[2606:4700:4700::1001]:853"},
	"dns.opendns.com":    {"[2620:119:35::35]:853", "[2620:119:53::53]:853"},
	"dns10.quad9.net":    {"[2620:fe::10]:853", "[2620:fe::fe:10]:853"},
})

var IPv4Servers = NewDNSList(map[string][]string{
	"dot.sb":             {"185.222.222.222:853", "45.11.45.11:853"},
	"dns.google":         {"8.8.8.8:853", "8.8.4.4:853"},
	"cloudflare-dns.com": {"1.1.1.1:853", "1.0.0.1:853"},
	"dns.opendns.com":    {"208.67.222.222:853", "208.67.220.220:853"},
	"dns10.quad9.net":    {"9.9.9.10:853", "149.112.112.10:853"},
})

// Resolver returns a resolver speaking DNS over TLS to ds.
func (ds *DNSList) Resolver() *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return ds.dial(ctx)
		},
	}
}

// DefaultResolver resolves over TLS, using the IPv6 servers when the
// network has IPv6.
var DefaultResolver = &net.Resolver{
	PreferGo: true,
	Dial: func(ctx context.Context, _, _ string) (net.Conn, error) {
		if ip.IsIPv6Available() {
			return IPv6Servers.dial(ctx)
		}
		return IPv4Servers.dial(ctx)
	},
}

// dial keeps a failed dial from reaching net.Resolver as a non-nil
// net.Conn holding a nil *tls.Conn.
func (ds *DNSList) dial(ctx context.Context) (net.Conn, error) {
	conn, err := ds.DialContext(ctx, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
