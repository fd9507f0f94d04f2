package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"iptv-bridge/internal/logging"
	"iptv-bridge/internal/settings"
)

// GetSettings returns all stored transcoding defaults.
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.All(r.Context())
	if err != nil {
		logging.Error("Failed to read settings: %v", err)
		writeJSONError(w, "failed to read settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, all)
}

// UpdateSettings applies a partial update of the transcoding defaults.
// The whole update is validated before anything is written so a bad
// value cannot leave the settings half-applied.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(updates) == 0 {
		writeJSONError(w, "no settings provided", http.StatusBadRequest)
		return
	}

	for key, value := range updates {
		if err := settings.Validate(key, value); err != nil {
			if errors.Is(err, settings.ErrUnknownKey) {
				writeJSONError(w, "unknown setting: "+key, http.StatusBadRequest)
				return
			}
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	for key, value := range updates {
		if err := h.store.Set(r.Context(), key, value); err != nil {
			logging.Error("Failed to write setting %s: %v", key, err)
			writeJSONError(w, "failed to write settings", http.StatusInternalServerError)
			return
		}
	}

	all, err := h.store.All(r.Context())
	if err != nil {
		logging.Error("Failed to read settings: %v", err)
		writeJSONError(w, "failed to read settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, all)
}
