package fetch

import (
	"fmt"
	"net/url"
	"sync"
)

// ProxyRing rotates outbound proxies sequentially across requests. An empty
// ring means direct connections.
type ProxyRing struct {
	mu      sync.Mutex
	proxies []*url.URL
	next    int
}

// NewProxyRing parses the configured proxy URLs into a ring.
func NewProxyRing(raw []string) (*ProxyRing, error) {
	r := &ProxyRing{}
	for _, s := range raw {
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url %q: %w", s, err)
		}
		r.proxies = append(r.proxies, u)
	}
	return r, nil
}

// Len returns the number of proxies in the ring. Safe on a nil ring.
func (r *ProxyRing) Len() int {
	if r == nil {
		return 0
	}
	return len(r.proxies)
}

// Next returns the proxy to use for the next request, nil when direct.
func (r *ProxyRing) Next() *url.URL {
	if r == nil || len(r.proxies) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.proxies[r.next]
	r.next = (r.next + 1) % len(r.proxies)
	return u
}
