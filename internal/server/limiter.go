package server

import (
	"net"
	"sync"

	"github.com/mailroute/mxrouter/pkg/logger"
	"golang.org/x/time/rate"
)

// RateLimiter manages per-client token buckets for lookup requests.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	logger   *logger.Logger
}

// NewRateLimiter creates a rate limiter allowing rps requests per second
// with the given burst per client address.
func NewRateLimiter(rps float64, burst int, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		logger:   log.ServerLogger(),
	}
}

// Allow reports whether a request from the given remote address may
// proceed. Buckets are keyed by host, so reconnecting on a new source
// port does not reset the budget.
func (rl *RateLimiter) Allow(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	rl.mu.Lock()
	limiter, exists := rl.limiters[host]
	if !exists {
		// Bound the map so a churn of client addresses cannot grow it
		// without limit.
		if len(rl.limiters) > 10000 {
			rl.limiters = make(map[string]*rate.Limiter)
			rl.logger.Info("Cleaned up rate limiter cache")
		}
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[host] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

// ActiveClients returns the number of tracked client addresses.
func (rl *RateLimiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
