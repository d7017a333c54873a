package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/fumiama/rawget/config"
	"github.com/fumiama/rawget/dial"
	"github.com/fumiama/rawget/dns"
	"github.com/fumiama/rawget/http"
)

const usage = "usage: rawget HOSTNAME[:PORT][/PATH] [-h]"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run fetches the URL in args and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	u, headerMode, ok := parseArgs(args)
	if !ok {
		fmt.Fprintln(stderr, usage)
		return 1
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return 1
	}
	setupLog(cfg.LogConf, stderr)

	cli := http.Client{
		Dialer:        newDialer(cfg.DialConf),
		Output:        stdout,
		HeaderMode:    headerMode,
		MaxRedirects:  cfg.MaxRedirects,
		ChunkSize:     cfg.ChunkSize,
		MaxHeaderSize: cfg.MaxHeaderSize,
	}
	if err := cli.Get(context.Background(), u); err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return 1
	}
	return 0
}

// parseArgs accepts exactly one URL and an optional -h in any order.
func parseArgs(args []string) (u string, headerMode, ok bool) {
	if len(args) < 1 || len(args) > 2 {
		return
	}
	for _, a := range args {
		switch {
		case a == "-h" && !headerMode:
			headerMode = true
		case u == "" && a != "-h":
			u = a
		default:
			return "", false, false
		}
	}
	if u == "" {
		return "", false, false
	}
	return u, headerMode, true
}

func setupLog(c config.LogConf, out io.Writer) {
	logrus.SetOutput(out)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		logrus.Warnln("unknown log level", c.Level, "defaulting to warn")
		level = logrus.WarnLevel
	}
	logrus.SetLevel(level)
}

func newDialer(c config.DialConf) *dial.Dialer {
	switch c.Resolver {
	case config.ResolverDoT:
		return dial.New(c.Timeout, c.CacheTTL, dns.DefaultResolver, nil)
	case config.ResolverDoH:
		return dial.New(c.Timeout, c.CacheTTL, &dns.DoHResolver{}, nil)
	default:
		return dial.New(c.Timeout, c.CacheTTL, net.DefaultResolver, dns.DefaultResolver)
	}
}
