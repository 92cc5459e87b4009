package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mailroute/mxrouter/internal/domain"
	"github.com/mailroute/mxrouter/internal/resolver"
	"github.com/mailroute/mxrouter/pkg/logger"
)

// AdminHandler provides the optional status/health HTTP endpoints.
type AdminHandler struct {
	registry    *domain.Registry
	resolver    *resolver.Resolver
	connections func() int64
	logger      *logger.Logger
	startTime   time.Time
}

// NewAdminHandler creates an admin handler. connections reports the
// number of open lookup connections.
func NewAdminHandler(registry *domain.Registry, res *resolver.Resolver, connections func() int64, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		registry:    registry,
		resolver:    res,
		connections: connections,
		logger:      log.AdminLogger(),
		startTime:   time.Now(),
	}
}

// StatsResponse represents the live statistics of the router.
type StatsResponse struct {
	Uptime            string                 `json:"uptime"`
	TotalLookups      int64                  `json:"total_lookups"`
	CacheEntries      int                    `json:"cache_entries"`
	ActiveConnections int64                  `json:"active_connections"`
	Groups            []domain.GroupSnapshot `json:"groups"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Router builds the admin HTTP routes.
func (h *AdminHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.StatsHandler).Methods(http.MethodGet)
	return r
}

// HealthHandler handles GET /healthz
func (h *AdminHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// StatsHandler handles GET /stats
func (h *AdminHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, StatsResponse{
		Uptime:            time.Since(h.startTime).String(),
		TotalLookups:      h.registry.TotalSelections(),
		CacheEntries:      h.resolver.CacheSize(),
		ActiveConnections: h.connections(),
		Groups:            h.registry.Snapshot(),
	})
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}
