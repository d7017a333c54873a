package http

import (
	"bytes"
	"fmt"
	"io"
)

// MaxRequestSize bounds a built request in bytes.
const MaxRequestSize = 16384

const (
	crlf = "\r\n"

	requestLinePrefix = "GET /"
	requestLineSuffix = " HTTP/1.1" + crlf
	hostHeader        = "Host: "
	closeHeader       = "Connection: close" + crlf
)

// fixed part of every request
const requestOverhead = len(requestLinePrefix) + len(requestLineSuffix) +
	len(hostHeader) + len(":") + len(crlf) + len(closeHeader) + len(crlf)

// BuildRequest formats a GET request for path on hostname:port.
// It fails with ErrOversizedRequest rather than truncating.
func BuildRequest(hostname, port, path string) ([]byte, error) {
	n := requestOverhead + len(hostname) + len(port) + len(path)
	if n > MaxRequestSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrOversizedRequest, n, MaxRequestSize)
	}
	var buf bytes.Buffer
	buf.Grow(n)
	buf.WriteString(requestLinePrefix)
	buf.WriteString(path)
	buf.WriteString(requestLineSuffix)
	buf.WriteString(hostHeader)
	buf.WriteString(hostname)
	buf.WriteByte(':')
	buf.WriteString(port)
	buf.WriteString(crlf)
	buf.WriteString(closeHeader)
	buf.WriteString(crlf)
	return buf.Bytes(), nil
}

// SendRequest writes all of req to w, retrying short writes.
func SendRequest(w io.Writer, req []byte) error {
	sent := 0
	for sent < len(req) {
		n, err := w.Write(req[sent:])
		sent += n
		if err != nil {
			return fmt.Errorf("%w: sent %d of %d bytes: %w", ErrSendIncomplete, sent, len(req), err)
		}
		if n == 0 {
			return fmt.Errorf("%w: sent %d of %d bytes: %w", ErrSendIncomplete, sent, len(req), io.ErrShortWrite)
		}
	}
	return nil
}
