package ip

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// ProbeURL only has an IPv6 address, so reaching it proves a working
// IPv6 route.
var ProbeURL = "http://v6.ipv6-test.com/json/widgetdata.php?callback=?"

// IsIPv6Available probes once, on first call, and caches the answer.
// Only the fallback resolvers need it, so plain fetches never pay for
// the probe.
var IsIPv6Available = sync.OnceValue(func() bool {
	return probe(ProbeURL, 4*time.Second)
})

func probe(u string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
