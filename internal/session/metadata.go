package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"iptv-bridge/internal/plan"
)

const (
	metadataFile    = "session.json"
	metadataVersion = 1
)

// metadata is the persisted form of a session, written into its
// directory so sessions survive a process restart.
type metadata struct {
	Version    int          `json:"version"`
	ID         string       `json:"id"`
	SourceURL  string       `json:"sourceUrl"`
	Options    plan.Options `json:"options"`
	Backend    string       `json:"backend,omitempty"`
	Status     string       `json:"status"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	LastAccess time.Time    `json:"lastAccess"`
}

// saveMetadata writes the session's metadata atomically: a temp file in
// the same directory, then a rename. A crash mid-write leaves either the
// old file or none, never a truncated one.
func (s *Session) saveMetadata() error {
	s.mu.Lock()
	meta := metadata{
		Version:    metadataVersion,
		ID:         s.ID,
		SourceURL:  s.SourceURL,
		Options:    s.Options,
		Backend:    s.backend,
		Status:     s.status,
		Error:      s.errMsg,
		CreatedAt:  s.CreatedAt,
		LastAccess: s.lastAccess,
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session metadata: %w", err)
	}

	tmp := filepath.Join(s.dir, metadataFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session metadata: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, metadataFile)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session metadata: %w", err)
	}
	return nil
}

// loadMetadata reads and validates a session's persisted metadata.
func loadMetadata(dir string) (*metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode session metadata: %w", err)
	}
	if meta.Version != metadataVersion {
		return nil, fmt.Errorf("unsupported session metadata version %d", meta.Version)
	}
	if meta.ID == "" {
		return nil, fmt.Errorf("session metadata has no id")
	}
	return &meta, nil
}
