package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"iptv-bridge/internal/logging"
	"iptv-bridge/internal/metrics"
	"iptv-bridge/internal/plan"
)

// Session lifecycle states.
const (
	StatusPending  = "pending"
	StatusStarting = "starting"
	StatusRunning  = "running"
	StatusStopped  = "stopped"
	StatusError    = "error"
)

// stopGrace is how long a stopped encoder gets to flush and exit on
// SIGTERM before it is killed.
const stopGrace = 2 * time.Second

// playlistPollInterval is how often WaitForPlaylist checks the session
// directory.
const playlistPollInterval = 200 * time.Millisecond

// Session is one transcode of one upstream URL into an HLS directory.
// The source URL and options are fixed at creation; only status and the
// access timestamp change afterwards.
type Session struct {
	ID        string
	SourceURL string
	Options   plan.Options
	CreatedAt time.Time

	dir string

	mu         sync.Mutex
	status     string
	backend    string
	errMsg     string
	lastAccess time.Time
	sup        *supervisor
}

// Info is the JSON-facing snapshot of a session.
type Info struct {
	ID         string       `json:"id"`
	SourceURL  string       `json:"sourceUrl"`
	Status     string       `json:"status"`
	Backend    string       `json:"backend,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	LastAccess time.Time    `json:"lastAccess"`
	Options    plan.Options `json:"options"`
}

// Start spawns the encoder for this session using the given plan. On a
// spawn failure the session transitions to error and the failure is
// returned to the caller.
func (s *Session) Start(binary string, p *plan.Plan) error {
	s.mu.Lock()
	if s.status != StatusPending {
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("cannot start session in status %q", status)
	}
	s.status = StatusStarting
	s.mu.Unlock()

	sup, err := startProcess(binary, p.CommandArgs(s.SourceURL), s.dir)
	if err != nil {
		s.fail(fmt.Sprintf("failed to spawn encoder: %v", err))
		return fmt.Errorf("failed to spawn encoder: %w", err)
	}

	s.mu.Lock()
	s.sup = sup
	s.backend = p.Backend
	s.status = StatusRunning
	s.mu.Unlock()

	logging.Info("Session %s: encoder started (pid=%d mode=%s backend=%s)",
		s.ID, sup.pid(), p.VideoMode, p.Backend)
	metrics.PlanBuildsTotal.WithLabelValues(p.VideoMode, p.Backend).Inc()

	if err := s.saveMetadata(); err != nil {
		logging.Warn("Session %s: failed to persist metadata: %v", s.ID, err)
	}

	go s.watchExit(sup)
	return nil
}

// watchExit records the encoder's exit. A stop-initiated exit stays
// stopped; an unexpected non-zero exit marks the session as errored so
// clients see the failure instead of a stalled playlist.
func (s *Session) watchExit(sup *supervisor) {
	<-sup.wait()
	exit := sup.exitState()

	s.mu.Lock()
	terminal := s.status == StatusStopped || s.status == StatusError
	if !terminal {
		if exit.killed || exit.code == 0 {
			s.status = StatusStopped
		} else {
			s.status = StatusError
			s.errMsg = fmt.Sprintf("encoder exited with code %d", exit.code)
		}
	}
	s.mu.Unlock()

	outcome := "clean"
	switch {
	case exit.killed:
		outcome = "killed"
	case exit.code != 0:
		outcome = "error"
	}
	metrics.EncoderProcessExitsTotal.WithLabelValues(outcome).Inc()
	logging.Info("Session %s: encoder exited (code=%d killed=%v)", s.ID, exit.code, exit.killed)

	if err := s.saveMetadata(); err != nil {
		logging.Warn("Session %s: failed to persist metadata: %v", s.ID, err)
	}
}

// WaitForPlaylist blocks until the encoder has produced a playlist that
// references at least one segment, the session dies, or the timeout
// elapses. A session is not servable until this returns nil.
func (s *Session) WaitForPlaylist(ctx context.Context, timeout time.Duration) error {
	playlist := filepath.Join(s.dir, plan.PlaylistName)
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(playlistPollInterval)
	defer ticker.Stop()

	for {
		if playlistReady(playlist) {
			return nil
		}

		switch status := s.Status(); status {
		case StatusError:
			return fmt.Errorf("encoder failed before producing a playlist: %s", s.ErrorMessage())
		case StatusStopped:
			return fmt.Errorf("session stopped before producing a playlist")
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for playlist after %s", timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// playlistReady reports whether the playlist references at least one
// segment. The muxer can flush a header-only manifest before the first
// segment completes; handing that to a player just stalls it.
func playlistReady(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return true
	}
	return false
}

// PlaylistPath returns the on-disk playlist location and marks the
// session as accessed.
func (s *Session) PlaylistPath() string {
	s.Touch()
	return filepath.Join(s.dir, plan.PlaylistName)
}

// SegmentPath resolves a segment filename inside the session directory
// and marks the session as accessed. Names that could escape the
// directory or reference non-segment files are rejected.
func (s *Session) SegmentPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid segment name: %q", name)
	}
	if !strings.HasSuffix(name, plan.SegmentSuffix) {
		return "", fmt.Errorf("not a segment file: %q", name)
	}
	s.Touch()
	return filepath.Join(s.dir, name), nil
}

// Stop terminates the encoder if it is running and marks the session
// stopped. Idempotent; safe on sessions that never started.
func (s *Session) Stop() {
	s.mu.Lock()
	sup := s.sup
	terminal := s.status == StatusStopped || s.status == StatusError
	if !terminal {
		s.status = StatusStopped
	}
	s.mu.Unlock()

	if sup != nil {
		sup.stop(stopGrace)
	}
	if terminal {
		return
	}
	if err := s.saveMetadata(); err != nil {
		logging.Warn("Session %s: failed to persist metadata: %v", s.ID, err)
	}
}

// Cleanup removes the session directory and everything in it.
func (s *Session) Cleanup() error {
	return os.RemoveAll(s.dir)
}

// Touch refreshes the last-access timestamp that the reaper inspects.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Dir returns the session's working directory.
func (s *Session) Dir() string {
	return s.dir
}

// Info snapshots the session for API responses.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.ID,
		SourceURL:  s.SourceURL,
		Status:     s.status,
		Backend:    s.backend,
		Error:      s.errMsg,
		CreatedAt:  s.CreatedAt,
		LastAccess: s.lastAccess,
		Options:    s.Options,
	}
}

// terminal reports whether the session can never serve new output again.
func (s *Session) terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusStopped || s.status == StatusError
}

// fail moves the session to the error state with the given message.
func (s *Session) fail(msg string) {
	s.mu.Lock()
	s.status = StatusError
	s.errMsg = msg
	s.mu.Unlock()
	if err := s.saveMetadata(); err != nil {
		logging.Warn("Session %s: failed to persist metadata: %v", s.ID, err)
	}
}
