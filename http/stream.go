package http

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	DefaultChunkSize     = 4096
	DefaultMaxHeaderSize = 64 * 1024
)

var (
	crlfcrlf = []byte("\r\n\r\n")
	lflf     = []byte("\n\n")
)

// Streamer copies one response from a connection to Output.
//
// In header mode every chunk is written as read. Otherwise the
// header block is cut off and only the body is written. Header bytes
// are buffered across reads, so a separator split between two chunks
// is still found.
type Streamer struct {
	Output         io.Writer
	HeaderMode     bool
	FollowRedirect bool
	ChunkSize      int
	MaxHeaderSize  int
	Log            *logrus.Entry
}

// Stream reads r until EOF. If FollowRedirect is set and the response
// is a 301 with a Location header, Stream stops early and returns the
// location. A read error ends the response like EOF does.
func (s *Streamer) Stream(r io.Reader) (location string, err error) {
	chunksize := s.ChunkSize
	if chunksize <= 0 {
		chunksize = DefaultChunkSize
	}
	maxheader := s.MaxHeaderSize
	if maxheader <= 0 {
		maxheader = DefaultMaxHeaderSize
	}
	buf := make([]byte, chunksize)
	var head []byte
	inbody := false
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if s.HeaderMode {
				if err = s.write(chunk); err != nil {
					return
				}
			}
			if inbody {
				if !s.HeaderMode {
					if err = s.write(chunk); err != nil {
						return
					}
				}
			} else {
				head = append(head, chunk...)
				end, seplen := headerEnd(head)
				switch {
				case end >= 0:
					inbody = true
					if s.FollowRedirect {
						if location = redirectTarget(head[:end]); location != "" {
							return
						}
					}
					if !s.HeaderMode {
						if err = s.write(head[end+seplen:]); err != nil {
							return
						}
					}
					head = nil
				case len(head) >= maxheader:
					s.logger().Warnln("no header separator in first", len(head), "bytes, writing as body")
					inbody = true
					if !s.HeaderMode {
						if err = s.write(head); err != nil {
							return
						}
					}
					head = nil
				}
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				s.logger().WithError(rerr).Warnln(ErrReadFailure)
			}
			break
		}
		if n == 0 {
			break
		}
	}
	if len(head) > 0 && !s.HeaderMode {
		// stream ended before any separator
		err = s.write(head)
	}
	return
}

func (s *Streamer) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	_, err := s.Output.Write(p)
	return err
}

func (s *Streamer) logger() *logrus.Entry {
	if s.Log != nil {
		return s.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// headerEnd locates the blank line ending the header block.
func headerEnd(p []byte) (end, seplen int) {
	if i := bytes.Index(p, crlfcrlf); i >= 0 {
		return i, len(crlfcrlf)
	}
	if i := bytes.Index(p, lflf); i >= 0 {
		return i, len(lflf)
	}
	return -1, 0
}

// redirectTarget returns the Location of a 301 header block, or "".
func redirectTarget(head []byte) string {
	lines := strings.Split(string(head), "\n")
	status := strings.Fields(lines[0])
	if len(status) < 2 || !strings.HasPrefix(status[0], "HTTP/") || status[1] != "301" {
		return ""
	}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "location") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
