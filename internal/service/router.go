package service

import (
	"context"
	"strings"

	"github.com/mailroute/mxrouter/internal/domain"
	apperrors "github.com/mailroute/mxrouter/internal/errors"
	"github.com/mailroute/mxrouter/internal/resolver"
	"github.com/mailroute/mxrouter/pkg/logger"
)

// ErrNoResult is returned when a lookup resolves to no relay: the key
// was the wildcard probe, or no rule matched and the legacy no-result
// variant is active with no default group.
var ErrNoResult = apperrors.NewError(apperrors.ErrCodeNoResult, "router", "no result")

// Match applies the ordered rule list against the resolved MX hostnames.
// A rule matches when its pattern is a substring of any hostname,
// checked in the order DNS returned them; the first matching rule wins
// and no further rules are examined. Matching is case-sensitive on the
// exact configured and resolved strings.
func Match(mxHosts []string, rules []domain.Rule) (string, bool) {
	if len(mxHosts) == 0 {
		return "", false
	}

	for _, rule := range rules {
		for _, host := range mxHosts {
			if strings.Contains(host, rule.Pattern) {
				return rule.Group, true
			}
		}
	}
	return "", false
}

// ExtractDomain derives the destination domain from a lookup key: the
// lowercased part after the last '@' if present, else the whole key.
func ExtractDomain(key string) string {
	if i := strings.LastIndex(key, "@"); i >= 0 {
		return strings.ToLower(key[i+1:])
	}
	return strings.ToLower(key)
}

// Router drives the lookup pipeline: resolve MX records, match rules,
// resolve the selection pool and pick a relay server.
type Router struct {
	registry *domain.Registry
	resolver *resolver.Resolver
	logger   *logger.Logger
}

// NewRouter creates a router over the given registry and resolver.
func NewRouter(registry *domain.Registry, res *resolver.Resolver, log *logger.Logger) *Router {
	return &Router{
		registry: registry,
		resolver: res,
		logger:   log.RouterLogger(),
	}
}

// Registry returns the routing registry.
func (r *Router) Registry() *domain.Registry {
	return r.registry
}

// Lookup answers one transport-map query: given a recipient address or
// bare domain, it returns the relay address of the selected server.
// Returns ErrNoResult when the lookup resolves to nothing.
func (r *Router) Lookup(ctx context.Context, key string) (string, error) {
	// Postfix probes maps with a bare wildcard; never a result.
	if key == "*" {
		return "", ErrNoResult
	}

	dom := ExtractDomain(key)
	mxHosts, fromCache := r.resolver.Resolve(ctx, dom)

	matched, ok := Match(mxHosts, r.registry.Rules())
	pool := r.registry.ResolvePool(matched)
	if len(pool) == 0 {
		r.logger.WithFields(map[string]interface{}{
			"key":    key,
			"domain": dom,
		}).Debug("No relay for lookup")
		return "", ErrNoResult
	}

	server := r.registry.Select(pool)

	fields := map[string]interface{}{
		"domain": dom,
		"server": server.Name,
		"group":  server.GroupName(),
		"cached": fromCache,
	}
	if ok {
		fields["matched_group"] = matched
	}
	r.logger.WithFields(fields).Debug("Lookup resolved")

	return server.Address, nil
}
