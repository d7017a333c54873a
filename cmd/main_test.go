package main

import (
	"bytes"
	"net"
	"strings"
	"testing"

	"github.com/fumiama/rawget/config"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args       []string
		u          string
		headerMode bool
		ok         bool
	}{
		{[]string{"example.com"}, "example.com", false, true},
		{[]string{"example.com", "-h"}, "example.com", true, true},
		{[]string{"-h", "example.com"}, "example.com", true, true},
		{nil, "", false, false},
		{[]string{"-h"}, "", false, false},
		{[]string{"-h", "-h"}, "", false, false},
		{[]string{"a.com", "b.com"}, "", false, false},
		{[]string{"a.com", "-h", "x"}, "", false, false},
	}
	for _, tc := range tests {
		u, headerMode, ok := parseArgs(tc.args)
		if u != tc.u || headerMode != tc.headerMode || ok != tc.ok {
			t.Fatalf("parseArgs(%q) = %q %v %v", tc.args, u, headerMode, ok)
		}
	}
}

func clearEnv(t *testing.T) {
	for _, k := range []string{config.EnvConfigFile, config.EnvMaxRedirects, config.EnvLogLevel, config.EnvResolver} {
		t.Setenv(k, "")
	}
}

func TestRunUsage(t *testing.T) {
	clearEnv(t)
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 1 {
		t.Fatal("exit code", code)
	}
	if !strings.HasPrefix(stderr.String(), "usage:") || stdout.Len() != 0 {
		t.Fatalf("stdout %q stderr %q", stdout.String(), stderr.String())
	}
}

func TestRunMalformed(t *testing.T) {
	clearEnv(t)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"http://"}, &stdout, &stderr); code != 1 {
		t.Fatal("exit code", code)
	}
	if !strings.Contains(stderr.String(), "malformed url") {
		t.Fatalf("stderr %q", stderr.String())
	}
}

func serveOnce(t *testing.T, resp string) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		var got []byte
		for !bytes.Contains(got, []byte("\r\n\r\n")) {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			got = append(got, buf[:n]...)
		}
		_, _ = conn.Write([]byte(resp))
	}()
	return l.Addr().String()
}

func TestRunFetch(t *testing.T) {
	clearEnv(t)
	const resp = "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"

	var stdout, stderr bytes.Buffer
	if code := run([]string{serveOnce(t, resp) + "/"}, &stdout, &stderr); code != 0 {
		t.Fatal("exit code", code, stderr.String())
	}
	if stdout.String() != "hi" {
		t.Fatalf("stdout %q", stdout.String())
	}

	stdout.Reset()
	if code := run([]string{"http://" + serveOnce(t, resp), "-h"}, &stdout, &stderr); code != 0 {
		t.Fatal("exit code", code, stderr.String())
	}
	if stdout.String() != resp {
		t.Fatalf("stdout %q", stdout.String())
	}
}

func TestRunConnectionFailure(t *testing.T) {
	clearEnv(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	var stdout, stderr bytes.Buffer
	if code := run([]string{addr}, &stdout, &stderr); code != 1 {
		t.Fatal("exit code", code)
	}
	if !strings.Contains(stderr.String(), "connection failure") {
		t.Fatalf("stderr %q", stderr.String())
	}
}
