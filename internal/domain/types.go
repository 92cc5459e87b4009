package domain

import (
	"fmt"
	"sync"

	apperrors "github.com/mailroute/mxrouter/internal/errors"
)

// Server represents one configured relay target inside a group.
// Address is an opaque transport string handed back to the caller verbatim.
type Server struct {
	Name    string
	Address string
	Weight  int

	group *Group
	// sent counts selections; guarded by the owning Registry's mutex
	sent int64
}

// GroupName returns the name of the group that owns this server.
func (s *Server) GroupName() string {
	if s.group == nil {
		return ""
	}
	return s.group.Name
}

// Group represents a named, ordered set of relay servers.
type Group struct {
	Name    string
	Servers []*Server
}

// Rule maps an MX hostname pattern to a target group.
// Rules are evaluated strictly in configured order; first match wins.
type Rule struct {
	Pattern string
	Group   string
}

// Registry holds the immutable routing configuration plus the mutable
// per-server selection counters. The registry mutex serializes every
// selection's read-compute-increment sequence and every stats snapshot,
// so concurrent connections never observe mid-update counters.
type Registry struct {
	mu sync.Mutex

	groups       []*Group
	byName       map[string]*Group
	rules        []Rule
	defaultGroup *Group
	// all is the flattened pool of every server in configured order,
	// used when no rule matched and no default group exists
	all []*Server

	alwaysResolve bool
}

// NewRegistry builds and validates a registry from configured groups and
// rules. Validation failures here are load-time fatal: duplicate group
// names, a rule or default referencing an undefined group, negative
// weights, or a configuration with no servers at all.
func NewRegistry(groups []*Group, rules []Rule, defaultGroup string, alwaysResolve bool) (*Registry, error) {
	r := &Registry{
		groups:        groups,
		byName:        make(map[string]*Group, len(groups)),
		rules:         rules,
		alwaysResolve: alwaysResolve,
	}

	total := 0
	for _, g := range groups {
		if g.Name == "" {
			return nil, apperrors.NewError(apperrors.ErrCodeConfigLoad, "registry", "group name cannot be empty")
		}
		if _, exists := r.byName[g.Name]; exists {
			return nil, apperrors.NewError(apperrors.ErrCodeConfigLoad, "registry",
				fmt.Sprintf("duplicate group name '%s'", g.Name))
		}
		r.byName[g.Name] = g

		for _, s := range g.Servers {
			if s.Weight < 0 {
				return nil, apperrors.NewError(apperrors.ErrCodeConfigLoad, "registry",
					fmt.Sprintf("group '%s': server '%s' has negative weight %d", g.Name, s.Name, s.Weight))
			}
			s.group = g
			r.all = append(r.all, s)
			total++
		}
	}

	if total == 0 {
		return nil, apperrors.NewError(apperrors.ErrCodeNoServers, "registry", "no servers configured in any group")
	}

	for i, rule := range rules {
		if rule.Pattern == "" {
			return nil, apperrors.NewError(apperrors.ErrCodeConfigLoad, "registry",
				fmt.Sprintf("rule[%d]: pattern cannot be empty", i))
		}
		if _, exists := r.byName[rule.Group]; !exists {
			return nil, apperrors.NewError(apperrors.ErrCodeUnknownGroup, "registry",
				fmt.Sprintf("rule[%d]: pattern '%s' references undefined group '%s'", i, rule.Pattern, rule.Group))
		}
	}

	if defaultGroup != "" {
		g, exists := r.byName[defaultGroup]
		if !exists {
			return nil, apperrors.NewError(apperrors.ErrCodeUnknownGroup, "registry",
				fmt.Sprintf("default group '%s' is not defined", defaultGroup))
		}
		r.defaultGroup = g
	}

	return r, nil
}

// Groups returns the configured groups in order.
func (r *Registry) Groups() []*Group {
	return r.groups
}

// GroupByName returns the group with the given name.
func (r *Registry) GroupByName(name string) (*Group, bool) {
	g, ok := r.byName[name]
	return g, ok
}

// Rules returns the ordered rule list.
func (r *Registry) Rules() []Rule {
	return r.rules
}

// DefaultGroup returns the configured default group, or nil.
func (r *Registry) DefaultGroup() *Group {
	return r.defaultGroup
}

// AlwaysResolve reports whether lookups fall through to the flattened
// all-servers pool when no rule matched and no default group exists.
// When false, such lookups produce no result (legacy behavior).
func (r *Registry) AlwaysResolve() bool {
	return r.alwaysResolve
}

// ResolvePool resolves the selection pool for a lookup. Priority order:
// the matched group, then the configured default group, then the
// flattened all-servers pool. The last step is skipped in the legacy
// no-result variant, in which case the pool is empty.
func (r *Registry) ResolvePool(matchedGroup string) []*Server {
	if matchedGroup != "" {
		if g, ok := r.byName[matchedGroup]; ok {
			return g.Servers
		}
	}
	if r.defaultGroup != nil {
		return r.defaultGroup.Servers
	}
	if r.alwaysResolve {
		return r.all
	}
	return nil
}

// TotalSelections returns the number of selections recorded so far.
func (r *Registry) TotalSelections() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, s := range r.all {
		total += s.sent
	}
	return total
}
