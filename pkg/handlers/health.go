package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/config"
)

// BridgeProber reports whether the external ERP bridge is reachable.
type BridgeProber interface {
	CheckHealth(ctx context.Context) bool
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Service         string `json:"service"`
	GoVersion       string `json:"go_version"`
	Hostname        string `json:"hostname"`
	Environment     string `json:"environment"`
	BridgeReachable *bool  `json:"bridge_reachable,omitempty"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	bridge BridgeProber
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. bridge may be nil when no
// bridge is configured.
func NewHealthHandler(cfg *config.Config, bridge BridgeProber, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, bridge: bridge, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ping", h.Ping)
}

// Health handles GET /health requests.
// Returns a simple "ok" status for load balancer health checks.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns detailed service information, including bridge reachability when
// a bridge is configured. An unreachable bridge is a normal condition and
// never fails the ping.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "forgeline-engine",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if h.bridge != nil {
		reachable := h.bridge.CheckHealth(r.Context())
		response.BridgeReachable = &reachable
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
