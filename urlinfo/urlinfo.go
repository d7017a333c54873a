package urlinfo

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used when the input carries no :port part.
const DefaultPort = "80"

var (
	ErrMalformedURL = errors.New("malformed url")
)

var schemes = [...]string{"http://", "https://"}

// URLInfo holds the three pieces of a parsed URL.
// Path never starts with '/'.
type URLInfo struct {
	Hostname string
	Port     string
	Path     string
}

// Parse splits raw into hostname, port and path.
//
// A leading http:// or https:// is dropped, the first '/' separates
// host:port from path and the first ':' separates hostname from port.
func Parse(raw string) (u URLInfo, err error) {
	if raw == "" {
		return u, fmt.Errorf("%w: empty input", ErrMalformedURL)
	}
	rest := raw
	for _, s := range schemes {
		if strings.HasPrefix(rest, s) {
			rest = rest[len(s):]
			break
		}
	}
	hostport, path, _ := strings.Cut(rest, "/")
	hostname, port, hasport := strings.Cut(hostport, ":")
	if !hasport {
		port = DefaultPort
	}
	if hostname == "" {
		return u, fmt.Errorf("%w: no hostname in %q", ErrMalformedURL, raw)
	}
	if !validport(port) {
		return u, fmt.Errorf("%w: invalid port %q", ErrMalformedURL, port)
	}
	return URLInfo{Hostname: hostname, Port: port, Path: path}, nil
}

// Resolve returns the target of a redirect whose Location is loc,
// issued by the server at base. A loc starting with '/' stays on
// base's host and port.
func Resolve(base URLInfo, loc string) (URLInfo, error) {
	if strings.HasPrefix(loc, "/") {
		return URLInfo{Hostname: base.Hostname, Port: base.Port, Path: loc[1:]}, nil
	}
	return Parse(loc)
}

// Addr is the host:port pair to dial.
func (u URLInfo) Addr() string {
	return net.JoinHostPort(u.Hostname, u.Port)
}

func (u URLInfo) String() string {
	return u.Hostname + ":" + u.Port + "/" + u.Path
}

func validport(p string) bool {
	if p == "" {
		return false
	}
	for _, c := range p {
		if c < '0' || c > '9' {
			return false
		}
	}
	n, err := strconv.Atoi(p)
	return err == nil && n > 0 && n <= 65535
}
