package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"iptv-bridge/internal/logging"
	"iptv-bridge/internal/metrics"
	"iptv-bridge/internal/plan"

	"github.com/google/uuid"
)

// ErrSessionLimit is returned when the configured session cap would be
// exceeded by a new session.
var ErrSessionLimit = errors.New("session limit reached")

// ErrNotFound is returned for lookups of unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Registry is the authoritative set of live sessions. All creation,
// lookup, reuse, and removal goes through it.
type Registry struct {
	root        string
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry rooted at the given transcode cache
// directory. maxSessions <= 0 means unlimited.
func NewRegistry(root string, maxSessions int) *Registry {
	return &Registry{
		root:        root,
		maxSessions: maxSessions,
		sessions:    make(map[string]*Session),
	}
}

// Create registers a new pending session with its own directory and
// persisted metadata.
func (r *Registry) Create(sourceURL string, opts plan.Options) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(sourceURL, opts)
}

// GetOrCreate reuses a live session for the same source URL when one
// exists, otherwise creates a new one. The second return value reports
// whether a session was created.
func (r *Registry) GetOrCreate(sourceURL string, opts plan.Options) (*Session, bool, error) {
	r.mu.Lock()

	for _, s := range r.sessions {
		if s.SourceURL == sourceURL && !s.terminal() {
			r.mu.Unlock()
			s.Touch()
			logging.Debug("Reusing session %s for %s", s.ID, sourceURL)
			return s, false, nil
		}
	}

	s, err := r.createLocked(sourceURL, opts)
	r.mu.Unlock()
	return s, err == nil, err
}

func (r *Registry) createLocked(sourceURL string, opts plan.Options) (*Session, error) {
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		metrics.SessionsRejectedTotal.WithLabelValues("limit").Inc()
		return nil, ErrSessionLimit
	}

	id := uuid.NewString()
	dir := filepath.Join(r.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	now := time.Now()
	s := &Session{
		ID:         id,
		SourceURL:  sourceURL,
		Options:    opts,
		CreatedAt:  now,
		dir:        dir,
		status:     StatusPending,
		lastAccess: now,
	}

	if err := s.saveMetadata(); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	r.sessions[id] = s
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	metrics.SessionsStartedTotal.Inc()
	logging.Info("Session %s: created for %s", id, sourceURL)
	return s, nil
}

// Get looks up a session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove stops a session, deletes its directory, and drops it from the
// registry. The reason labels the session-ended metric.
func (r *Registry) Remove(id, reason string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		metrics.SessionsActive.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	s.Stop()
	metrics.SessionsEndedTotal.WithLabelValues(reason).Inc()
	logging.Info("Session %s: removed (%s)", id, reason)

	if err := s.Cleanup(); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	return nil
}

// List snapshots all sessions for the API.
func (r *Registry) List() []Info {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Recover scans the cache root for session directories left by a previous
// process. Recovered sessions are forced to stopped: their encoder is
// gone, but already-produced segments remain servable until the reaper
// collects them. Unreadable directories are skipped with a warning.
func (r *Registry) Recover() (int, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return 0, fmt.Errorf("failed to scan transcode cache: %w", err)
	}

	recovered := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(r.root, entry.Name())

		meta, err := loadMetadata(dir)
		if err != nil {
			logging.Warn("Skipping unrecoverable session directory %s: %v", dir, err)
			continue
		}

		s := &Session{
			ID:         meta.ID,
			SourceURL:  meta.SourceURL,
			Options:    meta.Options,
			CreatedAt:  meta.CreatedAt,
			dir:        dir,
			status:     StatusStopped,
			backend:    meta.Backend,
			lastAccess: meta.LastAccess,
		}
		if err := s.saveMetadata(); err != nil {
			logging.Warn("Failed to persist recovered session %s: %v", s.ID, err)
		}

		r.mu.Lock()
		r.sessions[s.ID] = s
		metrics.SessionsActive.Set(float64(len(r.sessions)))
		r.mu.Unlock()

		logging.Debug("Recovered session %s (%s)", s.ID, s.SourceURL)
		recovered++
	}
	return recovered, nil
}

// Shutdown stops every session in place. Directories are kept so the next
// process can recover them.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	metrics.SessionsActive.Set(0)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
		metrics.SessionsEndedTotal.WithLabelValues("shutdown").Inc()
	}
	logging.Info("Stopped %d session(s)", len(sessions))
}
