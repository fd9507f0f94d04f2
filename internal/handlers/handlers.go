package handlers

import (
	"net/http"

	"iptv-bridge/internal/hwaccel"
	"iptv-bridge/internal/probe"
	"iptv-bridge/internal/session"
	"iptv-bridge/internal/settings"
	"iptv-bridge/internal/startup"

	"github.com/gorilla/mux"
)

type Handlers struct {
	registry *session.Registry
	prober   *probe.Prober
	detector *hwaccel.Detector
	store    *settings.Store
	config   *startup.Config
}

func New(registry *session.Registry, prober *probe.Prober, detector *hwaccel.Detector, store *settings.Store, config *startup.Config) *Handlers {
	return &Handlers{
		registry: registry,
		prober:   prober,
		detector: detector,
		store:    store,
		config:   config,
	}
}

// RegisterRoutes attaches all application routes to the router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Session lifecycle. The literal routes register ahead of the
	// {sessionId} route so "session"/"sessions" never match as an id.
	router.HandleFunc("/transcode/session", h.CreateSession).Methods(http.MethodPost)
	router.HandleFunc("/transcode/sessions", h.ListSessions).Methods(http.MethodGet)

	// HLS delivery
	router.HandleFunc("/transcode/{sessionId}/stream.m3u8", h.GetPlaylist).Methods(http.MethodGet)
	router.HandleFunc("/transcode/{sessionId}/{segment}", h.GetSegment).Methods(http.MethodGet)
	router.HandleFunc("/transcode/{sessionId}", h.DeleteSession).Methods(http.MethodDelete)

	// Stream inspection and hardware capabilities
	router.HandleFunc("/api/probe", h.ProbeSource).Methods(http.MethodGet)
	router.HandleFunc("/api/hwaccel", h.GetCapabilities).Methods(http.MethodGet)

	// Settings
	router.HandleFunc("/api/settings", h.GetSettings).Methods(http.MethodGet)
	router.HandleFunc("/api/settings", h.UpdateSettings).Methods(http.MethodPut)

	// Health and version
	router.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/version", h.Version).Methods(http.MethodGet)
}
