// Package ratelimit paces outbound requests per external host. The hosts we
// poll publish courtesy limits; exceeding them gets the client blocked, so
// the limiter is backpressure, not an optimization.
package ratelimit

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter holds one token bucket per host. Hosts without an explicit
// limit get the default.
type HostLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	defaults  rate.Limit
	burst     int
	overrides map[string]rate.Limit
}

// NewHostLimiter builds a limiter with a default requests-per-second rate.
func NewHostLimiter(defaultRPS float64) *HostLimiter {
	return &HostLimiter{
		limiters:  make(map[string]*rate.Limiter),
		defaults:  rate.Limit(defaultRPS),
		burst:     1,
		overrides: make(map[string]rate.Limit),
	}
}

// SetHostRate pins a specific requests-per-second ceiling for one host.
func (h *HostLimiter) SetHostRate(host string, rps float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.overrides[host] = rate.Limit(rps)
	delete(h.limiters, host) // rebuilt on next use
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	if lim, ok := h.limiters[host]; ok {
		return lim
	}
	limit := h.defaults
	if override, ok := h.overrides[host]; ok {
		limit = override
	}
	lim := rate.NewLimiter(limit, h.burst)
	h.limiters[host] = lim
	return lim
}

// Wait blocks until a request to rawURL's host is allowed, or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return h.limiterFor(host).Wait(ctx)
}
