package handler

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mailroute/mxrouter/internal/domain"
	"github.com/mailroute/mxrouter/internal/resolver"
	"github.com/mailroute/mxrouter/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*AdminHandler, *domain.Registry, *resolver.Resolver) {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	groups := []*domain.Group{
		{Name: "good", Servers: []*domain.Server{
			{Name: "mx1", Address: "relay:[mx1.example.com]:587", Weight: 40},
			{Name: "mx2", Address: "relay:[mx2.example.com]:587", Weight: 60},
		}},
	}
	registry, err := domain.NewRegistry(groups, nil, "", true)
	require.NoError(t, err)

	lookup := func(ctx context.Context, dom string) ([]*net.MX, error) {
		return []*net.MX{{Host: "mail." + dom + ".", Pref: 10}}, nil
	}
	res := resolver.NewWithLookup(time.Hour, lookup, log)

	h := NewAdminHandler(registry, res, func() int64 { return 3 }, log)
	return h, registry, res
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
}

func TestStatsHandler(t *testing.T) {
	t.Parallel()

	h, registry, res := newTestHandler(t)

	res.Resolve(context.Background(), "example.com")
	pool := registry.ResolvePool("good")
	for i := 0; i < 5; i++ {
		registry.Select(pool)
	}

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(5), stats.TotalLookups)
	assert.Equal(t, 1, stats.CacheEntries)
	assert.Equal(t, int64(3), stats.ActiveConnections)
	require.Len(t, stats.Groups, 1)
	assert.Equal(t, "good", stats.Groups[0].Name)
	assert.Equal(t, int64(5), stats.Groups[0].Total)
}

func TestStatsMethodNotAllowed(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
