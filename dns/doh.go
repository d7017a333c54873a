package dns

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FloatTech/ttl"
	"golang.org/x/net/http2"

	"github.com/fumiama/rawget/ip"
)

var (
	ErrEmptyHostAddress = errors.New("empty host addr")
	ErrNoAnswer         = errors.New("no answer")
	ErrNoTLSConnection  = errors.New("no tls connection")
)

type recordType uint16

const (
	recordTypeNone recordType = 0
	recordTypeA    recordType = 1
	recordTypeAAAA recordType = 28
)

type dohjsonresponse struct {
	Status   uint32
	TC       bool
	RD       bool
	RA       bool
	AD       bool
	CD       bool
	Question []struct {
		Name string     `json:"name"`
		Type recordType `json:"type"`
	}
	Answer []struct {
		Name string     `json:"name"`
		Type recordType `json:"type"`
		TTL  uint16
		Data string `json:"data"`
	}
	EdnsClientSubnet string `json:"edns_client_subnet"`
	Comment          string
}

func (jr *dohjsonresponse) hosts() []string {
	if len(jr.Answer) == 0 {
		return nil
	}
	hosts := make([]string, 0, len(jr.Answer))
	for _, ans := range jr.Answer {
		if ans.Type == recordTypeA || ans.Type == recordTypeAAAA {
			hosts = append(hosts, ans.Data)
		}
	}
	return hosts
}

var defaultDialer = net.Dialer{
	Timeout: time.Second * 4,
}

var lookupTable = ttl.NewCache[string, []string](time.Hour)

// dohClient reaches DoH servers over HTTP/2, resolving them with the
// system resolver.
var dohClient = http.Client{
	Transport: &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			return dialTLS(ctx, network, addr, cfg, net.DefaultResolver.LookupHost)
		},
	},
}

// dialTLS connects to the first address of addr's host that completes
// a TLS handshake.
func dialTLS(ctx context.Context, network, addr string, cfg *tls.Config, lookup func(context.Context, string) ([]string, error)) (net.Conn, error) {
	if defaultDialer.Timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultDialer.Timeout)
		defer cancel()
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	addrs := lookupTable.Get(host)
	if len(addrs) == 0 {
		addrs, err = lookup(ctx, host)
		if err != nil {
			return nil, err
		}
		if len(addrs) == 0 {
			return nil, ErrEmptyHostAddress
		}
		lookupTable.Set(host, addrs)
	}
	for _, a := range addrs {
		conn, err := defaultDialer.DialContext(ctx, network, net.JoinHostPort(a, port))
		if err != nil {
			continue
		}
		tlsConn := tls.Client(conn, cfg)
		if err = tlsConn.HandshakeContext(ctx); err == nil {
			return tlsConn, nil
		}
		_ = tlsConn.Close()
	}
	return nil, ErrNoTLSConnection
}

// DoHServers are JSON API endpoints of public DNS over HTTPS services.
var DoHServers = []string{
	"https://cloudflare-dns.com/dns-query",
	"https://dns.google/resolve",
}

// DoHResolver resolves hosts with the JSON API of DNS over HTTPS
// servers, asking each in turn.
type DoHResolver struct {
	Servers []string
}

// LookupHost implements the resolver used by dial.
func (r *DoHResolver) LookupHost(ctx context.Context, host string) (addrs []string, err error) {
	servers := r.Servers
	if len(servers) == 0 {
		servers = DoHServers
	}
	if addrs = lookupTable.Get(host); len(addrs) > 0 {
		return
	}
	err = ErrNoAnswer
	for _, server := range servers {
		var jr dohjsonresponse
		jr, err = lookupdoh(ctx, server, host)
		if err != nil {
			continue
		}
		addrs = jr.hosts()
		if len(addrs) > 0 {
			lookupTable.Set(host, addrs)
			return addrs, nil
		}
		err = ErrNoAnswer
	}
	return nil, err
}

func lookupdoh(ctx context.Context, server, u string) (jr dohjsonresponse, err error) {
	jr, err = lookupdohwithtype(ctx, server, u, preferreddohtype())
	if err == nil && len(jr.hosts()) > 0 {
		return
	}
	if ip.IsIPv6Available() {
		jr, err = lookupdohwithtype(ctx, server, u, recordTypeA)
	}
	return
}

func lookupdohwithtype(ctx context.Context, server, u string, typ recordType) (jr dohjsonresponse, err error) {
	sb := strings.Builder{}
	sb.WriteString(server)
	sb.WriteString("?name=")
	sb.WriteString(url.QueryEscape(u))
	if typ != recordTypeNone {
		sb.WriteString("&type=")
		sb.WriteString(strconv.Itoa(int(typ)))
	}
	req, err := http.NewRequestWithContext(ctx, "GET", sb.String(), nil)
	if err != nil {
		return
	}
	req.Header.Add("accept", "application/dns-json")
	resp, err := dohClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&jr)
	if err != nil {
		return
	}
	if jr.Status != 0 {
		err = errors.New("comment: " + jr.Comment)
	}
	return
}

func preferreddohtype() recordType {
	if ip.IsIPv6Available() {
		return recordTypeAAAA
	}
	return recordTypeA
}
