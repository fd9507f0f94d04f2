package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"iptv-bridge/internal/logging"
	"iptv-bridge/internal/metrics"
	"iptv-bridge/internal/plan"
	"iptv-bridge/internal/session"

	"github.com/gorilla/mux"
)

// CreateSessionRequest is the body of POST /transcode/session. All
// option fields are optional; unset ones are filled from stored settings
// and, for the video mode, from a probe of the source.
type CreateSessionRequest struct {
	URL string `json:"url"`
	plan.Options
}

// CreateSessionResponse describes the created (or reused) session.
type CreateSessionResponse struct {
	SessionID   string `json:"sessionId"`
	PlaylistURL string `json:"playlistUrl"`
	Status      string `json:"status"`
	Reused      bool   `json:"reused"`
}

// CreateSession starts (or reuses) a transcode session for an upstream
// URL and blocks until its playlist is servable.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		writeJSONError(w, "url is required", http.StatusBadRequest)
		return
	}

	opts := req.Options
	if err := h.store.PlanOptions(r.Context(), &opts); err != nil {
		logging.Error("Failed to load stored settings: %v", err)
		writeJSONError(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	h.resolveVideoMode(r, req.URL, &opts)

	s, created, err := h.registry.GetOrCreate(req.URL, opts)
	if errors.Is(err, session.ErrSessionLimit) {
		writeJSONError(w, "session limit reached", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		logging.Error("Failed to create session: %v", err)
		writeJSONError(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	if created {
		p, err := plan.Build(opts, h.detector.GetCapabilities())
		if err != nil {
			h.discardSession(s.ID)
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.Start(h.config.FFmpegPath, p); err != nil {
			logging.Error("Session %s: %v", s.ID, err)
			metrics.SessionsRejectedTotal.WithLabelValues("spawn").Inc()
			h.discardSession(s.ID)
			writeJSONError(w, "failed to start encoder", http.StatusInternalServerError)
			return
		}
	}

	if err := s.WaitForPlaylist(r.Context(), h.config.PlaylistWaitTimeout); err != nil {
		logging.Error("Session %s: %v", s.ID, err)
		metrics.SessionsRejectedTotal.WithLabelValues("playlist_timeout").Inc()
		h.discardSession(s.ID)
		writeJSONError(w, "encoder did not produce a playlist", http.StatusInternalServerError)
		return
	}

	if created {
		metrics.SessionStartDuration.Observe(time.Since(start).Seconds())
	}

	w.Header().Set("Content-Type", "application/json")
	if created {
		w.WriteHeader(http.StatusCreated)
	}
	writeJSON(w, CreateSessionResponse{
		SessionID:   s.ID,
		PlaylistURL: fmt.Sprintf("/transcode/%s/stream.m3u8", s.ID),
		Status:      s.Status(),
		Reused:      !created,
	})
}

// resolveVideoMode fills in the video mode from a probe of the source
// when the caller did not choose one. Unprobeable sources get a full
// encode; pass-through of an unknown bitstream produces broken output,
// re-encoding merely wastes cycles.
func (h *Handlers) resolveVideoMode(r *http.Request, sourceURL string, opts *plan.Options) {
	if opts.VideoMode != "" {
		return
	}

	result, err := h.prober.Probe(r.Context(), sourceURL)
	if err != nil {
		logging.Warn("Probe of %s failed, defaulting to encode: %v", sourceURL, err)
		opts.VideoMode = plan.VideoModeEncode
		return
	}

	if result.NeedsTranscode {
		opts.VideoMode = plan.VideoModeEncode
	} else {
		opts.VideoMode = plan.VideoModeCopy
	}
	opts.VideoCodec = result.Video
	opts.AudioCodec = result.Audio
	opts.AudioChannels = result.AudioChannels
}

// discardSession removes a session that failed before becoming servable.
func (h *Handlers) discardSession(id string) {
	if err := h.registry.Remove(id, "deleted"); err != nil && !errors.Is(err, session.ErrNotFound) {
		logging.Warn("Failed to discard session %s: %v", id, err)
	}
}

// ListSessionsResponse is the body of GET /transcode/sessions.
type ListSessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
	Count    int            `json:"count"`
}

// ListSessions returns a snapshot of every registered session.
func (h *Handlers) ListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := h.registry.List()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ListSessionsResponse{
		Sessions: sessions,
		Count:    len(sessions),
	})
}

// DeleteSession stops a session, kills its encoder, and removes its
// cache directory.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]

	err := h.registry.Remove(id, "deleted")
	if errors.Is(err, session.ErrNotFound) {
		writeJSONError(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to delete session %s: %v", id, err)
		writeJSONError(w, "failed to delete session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]bool{"success": true})
}

// GetPlaylist serves a session's HLS playlist. The playlist grows as the
// encoder appends segments, so caching is disabled.
func (h *Handlers) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]

	s, ok := h.registry.Get(id)
	if !ok {
		metrics.PlaylistRequestsTotal.WithLabelValues("not_found").Inc()
		writeJSONError(w, "session not found", http.StatusNotFound)
		return
	}

	path := s.PlaylistPath()
	if _, err := os.Stat(path); err != nil {
		metrics.PlaylistRequestsTotal.WithLabelValues("not_found").Inc()
		writeJSONError(w, "playlist not available", http.StatusNotFound)
		return
	}

	metrics.PlaylistRequestsTotal.WithLabelValues("ok").Inc()
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	http.ServeFile(w, r, path)
}

// GetSegment serves one transport-stream segment. Segments never change
// once written, so clients may cache them indefinitely.
func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["sessionId"]
	name := vars["segment"]

	s, ok := h.registry.Get(id)
	if !ok {
		metrics.SegmentRequestsTotal.WithLabelValues("not_found").Inc()
		writeJSONError(w, "session not found", http.StatusNotFound)
		return
	}

	path, err := s.SegmentPath(name)
	if err != nil {
		metrics.SegmentRequestsTotal.WithLabelValues("not_found").Inc()
		writeJSONError(w, "invalid segment", http.StatusBadRequest)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		metrics.SegmentRequestsTotal.WithLabelValues("not_found").Inc()
		writeJSONError(w, "segment not found", http.StatusNotFound)
		return
	}

	metrics.SegmentRequestsTotal.WithLabelValues("ok").Inc()
	metrics.SegmentBytesServed.Add(float64(info.Size()))
	w.Header().Set("Content-Type", "video/MP2T")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, path)
}

// ProbeSource inspects an upstream URL without starting a session.
func (h *Handlers) ProbeSource(w http.ResponseWriter, r *http.Request) {
	sourceURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if sourceURL == "" {
		writeJSONError(w, "url query parameter is required", http.StatusBadRequest)
		return
	}

	result, err := h.prober.Probe(r.Context(), sourceURL)
	if err != nil {
		logging.Warn("Probe of %s failed: %v", sourceURL, err)
		writeJSONError(w, "failed to probe source", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result)
}

// GetCapabilities reports the detected hardware encoders.
func (h *Handlers) GetCapabilities(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.detector.GetCapabilities())
}
