package service

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/mailroute/mxrouter/internal/domain"
	"github.com/mailroute/mxrouter/internal/resolver"
	"github.com/mailroute/mxrouter/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

// testZones maps domains to MX hostnames in DNS preference order.
var testZones = map[string][]string{
	"outlook.com": {"outlook-com.olc.protection.outlook.com"},
	"gmail.com":   {"gmail-smtp-in.l.google.com", "alt1.gmail-smtp-in.l.google.com"},
	"example.com": {"mail.example.com"},
}

func zoneResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	lookup := func(ctx context.Context, dom string) ([]*net.MX, error) {
		hosts, ok := testZones[dom]
		if !ok {
			return nil, fmt.Errorf("lookup %s: no such host", dom)
		}
		records := make([]*net.MX, len(hosts))
		for i, h := range hosts {
			records[i] = &net.MX{Host: h + ".", Pref: uint16(10 * (i + 1))}
		}
		return records, nil
	}
	return resolver.NewWithLookup(time.Hour, lookup, testLogger(t))
}

func testGroups() []*domain.Group {
	return []*domain.Group{
		{
			Name: "outlook",
			Servers: []*domain.Server{
				{Name: "mx1", Address: "relay:[mx1.relay.example]:587", Weight: 100},
			},
		},
		{
			Name: "google",
			Servers: []*domain.Server{
				{Name: "mx2", Address: "relay:[mx2.relay.example]:587", Weight: 100},
			},
		},
		{
			Name: "default",
			Servers: []*domain.Server{
				{Name: "mx3", Address: "relay:[mx3.relay.example]:587", Weight: 100},
			},
		},
	}
}

func testRules() []domain.Rule {
	return []domain.Rule{
		{Pattern: "protection.outlook.com", Group: "outlook"},
		{Pattern: "google.com", Group: "google"},
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	rules := testRules()

	tests := []struct {
		name      string
		hosts     []string
		wantGroup string
		wantOK    bool
	}{
		{
			name:      "substring match",
			hosts:     []string{"outlook-com.olc.protection.outlook.com"},
			wantGroup: "outlook",
			wantOK:    true,
		},
		{
			name:      "second rule matches",
			hosts:     []string{"gmail-smtp-in.l.google.com"},
			wantGroup: "google",
			wantOK:    true,
		},
		{
			name:   "no rule matches",
			hosts:  []string{"mail.example.com"},
			wantOK: false,
		},
		{
			name:   "empty host list never matches",
			hosts:  nil,
			wantOK: false,
		},
		{
			name:      "any hostname in the answer can match",
			hosts:     []string{"mail.example.com", "backup.protection.outlook.com"},
			wantGroup: "outlook",
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group, ok := Match(tt.hosts, rules)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantGroup, group)
		})
	}
}

// TestMatchRuleOrder pins first-match-wins across rules: rule order
// decides, not hostname order within a rule's scan.
func TestMatchRuleOrder(t *testing.T) {
	t.Parallel()

	rules := []domain.Rule{
		{Pattern: "specific.example.com", Group: "first"},
		{Pattern: "example.com", Group: "second"},
	}

	group, ok := Match([]string{"mx.specific.example.com"}, rules)
	require.True(t, ok)
	assert.Equal(t, "first", group)

	// The broader pattern still applies when the narrower one misses.
	group, ok = Match([]string{"mx.other.example.com"}, rules)
	require.True(t, ok)
	assert.Equal(t, "second", group)
}

func TestExtractDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key      string
		expected string
	}{
		{"user@example.com", "example.com"},
		{"example.com", "example.com"},
		{"User@EXAMPLE.COM", "example.com"},
		{`"odd@user"@example.com`, "example.com"},
		{"user@", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ExtractDomain(tt.key), "key %q", tt.key)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	newRouter := func(t *testing.T, defaultGroup string, alwaysResolve bool) *Router {
		registry, err := domain.NewRegistry(testGroups(), testRules(), defaultGroup, alwaysResolve)
		require.NoError(t, err)
		return NewRouter(registry, zoneResolver(t), testLogger(t))
	}

	t.Run("matched rule routes to its group", func(t *testing.T) {
		r := newRouter(t, "default", true)

		address, err := r.Lookup(context.Background(), "someone@outlook.com")
		require.NoError(t, err)
		assert.Equal(t, "relay:[mx1.relay.example]:587", address)

		address, err = r.Lookup(context.Background(), "someone@gmail.com")
		require.NoError(t, err)
		assert.Equal(t, "relay:[mx2.relay.example]:587", address)
	})

	t.Run("unmatched domain falls back to default group", func(t *testing.T) {
		r := newRouter(t, "default", true)

		address, err := r.Lookup(context.Background(), "someone@example.com")
		require.NoError(t, err)
		assert.Equal(t, "relay:[mx3.relay.example]:587", address)
	})

	t.Run("bare domain key works like an address", func(t *testing.T) {
		r := newRouter(t, "default", true)

		address, err := r.Lookup(context.Background(), "outlook.com")
		require.NoError(t, err)
		assert.Equal(t, "relay:[mx1.relay.example]:587", address)
	})

	t.Run("dns failure falls back to default group", func(t *testing.T) {
		r := newRouter(t, "default", true)

		address, err := r.Lookup(context.Background(), "someone@nxdomain.example")
		require.NoError(t, err)
		assert.Equal(t, "relay:[mx3.relay.example]:587", address)
	})

	t.Run("no default draws from all servers", func(t *testing.T) {
		r := newRouter(t, "", true)

		seen := map[string]bool{}
		for i := 0; i < 30; i++ {
			address, err := r.Lookup(context.Background(), "someone@example.com")
			require.NoError(t, err)
			seen[address] = true
		}
		assert.Len(t, seen, 3)
	})

	t.Run("legacy variant returns no result", func(t *testing.T) {
		r := newRouter(t, "", false)

		_, err := r.Lookup(context.Background(), "someone@example.com")
		assert.ErrorIs(t, err, ErrNoResult)
	})

	t.Run("wildcard probe always no result", func(t *testing.T) {
		r := newRouter(t, "default", true)

		_, err := r.Lookup(context.Background(), "*")
		assert.ErrorIs(t, err, ErrNoResult)
	})
}
