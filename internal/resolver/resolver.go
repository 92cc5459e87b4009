package resolver

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/mailroute/mxrouter/pkg/logger"
)

const defaultLookupTimeout = 10 * time.Second

// LookupMXFunc performs a raw MX query. Injectable for testing.
type LookupMXFunc func(ctx context.Context, domain string) ([]*net.MX, error)

type cacheEntry struct {
	hosts   []string
	expires time.Time
}

// Resolver resolves DNS MX records with a TTL cache in front. Resolution
// fails open: any DNS error, timeout or NXDOMAIN yields an empty host
// list, and negative results are never cached so transient failures are
// retried on the next lookup. A TTL of 0 disables caching entirely.
type Resolver struct {
	mu    sync.RWMutex
	cache map[string]cacheEntry

	ttl     time.Duration
	timeout time.Duration
	lookup  LookupMXFunc
	logger  *logger.Logger
}

// New creates a resolver backed by the system DNS resolver.
func New(ttl time.Duration, log *logger.Logger) *Resolver {
	return NewWithLookup(ttl, net.DefaultResolver.LookupMX, log)
}

// NewWithLookup creates a resolver with a custom MX lookup function.
func NewWithLookup(ttl time.Duration, lookup LookupMXFunc, log *logger.Logger) *Resolver {
	return &Resolver{
		cache:   make(map[string]cacheEntry),
		ttl:     ttl,
		timeout: defaultLookupTimeout,
		lookup:  lookup,
		logger:  log.ResolverLogger(),
	}
}

// Resolve returns the MX hostnames for a domain in DNS preference order,
// lowercased with trailing dots stripped. The second return value
// reports whether the answer came from the cache.
func (r *Resolver) Resolve(ctx context.Context, domain string) ([]string, bool) {
	if r.ttl > 0 {
		r.mu.RLock()
		entry, ok := r.cache[domain]
		r.mu.RUnlock()

		if ok && time.Now().Before(entry.expires) {
			return append([]string(nil), entry.hosts...), true
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	records, err := r.lookup(lookupCtx, domain)
	if err != nil {
		// Fails open: an unresolvable domain routes through the
		// fallback pool instead of erroring the request.
		r.logger.WithError(err).WithField("domain", domain).Debug("MX lookup failed")
		return nil, false
	}

	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		host := strings.ToLower(strings.TrimSuffix(mx.Host, "."))
		if host != "" {
			hosts = append(hosts, host)
		}
	}

	if r.ttl > 0 {
		r.mu.Lock()
		r.cache[domain] = cacheEntry{hosts: hosts, expires: time.Now().Add(r.ttl)}
		r.mu.Unlock()
	}

	return append([]string(nil), hosts...), false
}

// CacheSize returns the number of cached entries, expired or not.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Cleanup removes expired cache entries and returns how many were removed.
func (r *Resolver) Cleanup() int {
	if r.ttl <= 0 {
		return 0
	}

	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for domain, entry := range r.cache {
		if !now.Before(entry.expires) {
			delete(r.cache, domain)
			removed++
		}
	}
	return removed
}

// StartGC periodically sweeps expired cache entries until the context is
// cancelled.
func (r *Resolver) StartGC(ctx context.Context, interval time.Duration) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := r.Cleanup(); removed > 0 {
					r.logger.WithFields(map[string]interface{}{
						"removed":   removed,
						"remaining": r.CacheSize(),
					}).Info("Removed expired MX cache entries")
				}
			}
		}
	}()
}
