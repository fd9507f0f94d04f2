package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"iptv-bridge/internal/hwaccel"
	"iptv-bridge/internal/plan"
	"iptv-bridge/internal/probe"
	"iptv-bridge/internal/session"
	"iptv-bridge/internal/settings"
	"iptv-bridge/internal/startup"

	"github.com/gorilla/mux"
)

type testEnv struct {
	handlers *Handlers
	router   *mux.Router
	registry *session.Registry
	config   *startup.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &startup.Config{
		FFmpegPath:          "/nonexistent/ffmpeg",
		FFprobePath:         "/nonexistent/ffprobe",
		PlaylistWaitTimeout: 2 * time.Second,
	}

	reg := session.NewRegistry(t.TempDir(), 0)

	store, err := settings.New(context.Background(), filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("Failed to create settings store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := New(reg, probe.New(cfg.FFprobePath), hwaccel.NewDetector(cfg.FFmpegPath), store, cfg)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	return &testEnv{handlers: h, router: router, registry: reg, config: cfg}
}

// stubEncoder writes an executable script that produces a playlist in its
// working directory and then blocks, imitating a live encode.
func stubEncoder(t *testing.T) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fake-encoder")
	body := "#!/bin/sh\n" +
		"echo 'data' > seg0000.ts\n" +
		"printf '#EXTM3U\\n#EXT-X-VERSION:3\\n#EXTINF:4.000,\\nseg0000.ts\\n' > stream.m3u8\n" +
		"sleep 30\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("Failed to write stub encoder: %v", err)
	}
	return script
}

func doRequest(env *testEnv, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func createTestSession(t *testing.T, env *testEnv, url string) *session.Session {
	t.Helper()
	s, err := env.registry.Create(url, plan.Options{
		VideoMode:      plan.VideoModeCopy,
		AudioMixPreset: plan.AudioPassthrough,
		VideoCodec:     "h264",
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return s
}

func TestCreateSessionRequiresURL(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodPost, "/transcode/session", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestCreateSessionInvalidBody(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodPost, "/transcode/session", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestCreateSessionSpawnFailure(t *testing.T) {
	env := newTestEnv(t)

	body := `{"url": "http://example.com/live.ts", "videoMode": "copy", "videoCodec": "h264"}`
	rec := doRequest(env, http.MethodPost, "/transcode/session", body)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
	if env.registry.Len() != 0 {
		t.Error("Failed session must be removed from the registry")
	}
}

func TestCreateSessionSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.config.FFmpegPath = stubEncoder(t)

	body := `{"url": "http://example.com/live.ts", "videoMode": "copy", "videoCodec": "h264"}`
	rec := doRequest(env, http.MethodPost, "/transcode/session", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp CreateSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Reused {
		t.Error("First session must not be marked reused")
	}
	if resp.Status != session.StatusRunning {
		t.Errorf("Expected running session, got %q", resp.Status)
	}
	if resp.PlaylistURL != "/transcode/"+resp.SessionID+"/stream.m3u8" {
		t.Errorf("Unexpected playlist URL: %q", resp.PlaylistURL)
	}

	t.Cleanup(func() { env.registry.Shutdown() })
}

func TestCreateSessionReusesLiveSession(t *testing.T) {
	env := newTestEnv(t)
	env.config.FFmpegPath = stubEncoder(t)

	body := `{"url": "http://example.com/live.ts", "videoMode": "copy", "videoCodec": "h264"}`

	first := doRequest(env, http.MethodPost, "/transcode/session", body)
	if first.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", first.Code)
	}

	second := doRequest(env, http.MethodPost, "/transcode/session", body)
	if second.Code != http.StatusOK {
		t.Fatalf("Expected 200 for reuse, got %d", second.Code)
	}

	var firstResp, secondResp CreateSessionResponse
	if err := json.Unmarshal(first.Body.Bytes(), &firstResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &secondResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !secondResp.Reused {
		t.Error("Second response must be marked reused")
	}
	if secondResp.SessionID != firstResp.SessionID {
		t.Error("Reuse must return the same session")
	}
	if env.registry.Len() != 1 {
		t.Errorf("Expected 1 session, got %d", env.registry.Len())
	}

	t.Cleanup(func() { env.registry.Shutdown() })
}

func TestCreateSessionLimit(t *testing.T) {
	env := newTestEnv(t)
	env.config.FFmpegPath = stubEncoder(t)

	limited := session.NewRegistry(t.TempDir(), 1)
	env.handlers.registry = limited
	env.registry = limited

	first := doRequest(env, http.MethodPost, "/transcode/session",
		`{"url": "http://example.com/a.ts", "videoMode": "copy", "videoCodec": "h264"}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", first.Code)
	}

	second := doRequest(env, http.MethodPost, "/transcode/session",
		`{"url": "http://example.com/b.ts", "videoMode": "copy", "videoCodec": "h264"}`)
	if second.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 at the session limit, got %d", second.Code)
	}

	t.Cleanup(func() { limited.Shutdown() })
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	s := createTestSession(t, env, "http://example.com/a.ts")

	rec := doRequest(env, http.MethodDelete, "/transcode/"+s.ID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp["success"] {
		t.Errorf("Expected success response, got %s", rec.Body.String())
	}
	if env.registry.Len() != 0 {
		t.Error("Session not removed")
	}
}

func TestDeleteSessionNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodDelete, "/transcode/no-such-id", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodGet, "/transcode/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp ListSessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("Expected empty list, got %d", resp.Count)
	}

	createTestSession(t, env, "http://example.com/a.ts")

	rec = doRequest(env, http.MethodGet, "/transcode/sessions", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Sessions) != 1 {
		t.Errorf("Expected 1 session, got count=%d len=%d", resp.Count, len(resp.Sessions))
	}
}

func TestGetPlaylist(t *testing.T) {
	env := newTestEnv(t)
	s := createTestSession(t, env, "http://example.com/a.ts")

	playlist := filepath.Join(s.Dir(), plan.PlaylistName)
	if err := os.WriteFile(playlist, []byte("#EXTM3U\n#EXT-X-VERSION:3\n"), 0o644); err != nil {
		t.Fatalf("Failed to write playlist: %v", err)
	}

	rec := doRequest(env, http.MethodGet, "/transcode/"+s.ID+"/stream.m3u8", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/vnd.apple.mpegurl" {
		t.Errorf("Unexpected content type: %q", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "#EXTM3U") {
		t.Errorf("Unexpected playlist body: %q", rec.Body.String())
	}
}

func TestGetPlaylistSessionNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodGet, "/transcode/no-such-id/stream.m3u8", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestGetPlaylistNotYetWritten(t *testing.T) {
	env := newTestEnv(t)
	s := createTestSession(t, env, "http://example.com/a.ts")

	rec := doRequest(env, http.MethodGet, "/transcode/"+s.ID+"/stream.m3u8", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before the encoder writes a playlist, got %d", rec.Code)
	}
}

func TestGetSegment(t *testing.T) {
	env := newTestEnv(t)
	s := createTestSession(t, env, "http://example.com/a.ts")

	segment := filepath.Join(s.Dir(), "seg0001.ts")
	if err := os.WriteFile(segment, []byte("segment-data"), 0o644); err != nil {
		t.Fatalf("Failed to write segment: %v", err)
	}

	rec := doRequest(env, http.MethodGet, "/transcode/"+s.ID+"/seg0001.ts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/MP2T" {
		t.Errorf("Unexpected content type: %q", got)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("Segments must be cacheable, got %q", cc)
	}
	if rec.Body.String() != "segment-data" {
		t.Errorf("Unexpected segment body: %q", rec.Body.String())
	}
}

func TestGetSegmentRejectsNonSegmentNames(t *testing.T) {
	env := newTestEnv(t)
	s := createTestSession(t, env, "http://example.com/a.ts")

	rec := doRequest(env, http.MethodGet, "/transcode/"+s.ID+"/session.json", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-segment file, got %d", rec.Code)
	}
}

func TestGetSegmentMissing(t *testing.T) {
	env := newTestEnv(t)
	s := createTestSession(t, env, "http://example.com/a.ts")

	rec := doRequest(env, http.MethodGet, "/transcode/"+s.ID+"/seg9999.ts", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestProbeRequiresURL(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodGet, "/api/probe", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestGetCapabilities(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodGet, "/api/hwaccel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var caps hwaccel.Capabilities
	if err := json.Unmarshal(rec.Body.Bytes(), &caps); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	// With no usable encoder binary every hardware path fails closed.
	if caps.Recommended != hwaccel.BackendSoftware {
		t.Errorf("Expected software recommendation, got %q", caps.Recommended)
	}
}

func TestGetSettingsDefaults(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodGet, "/api/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var all map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if all["quality"] != "medium" {
		t.Errorf("Expected default quality, got %q", all["quality"])
	}
}

func TestUpdateSettings(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodPut, "/api/settings", `{"quality": "high", "maxResolution": "720p"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var all map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if all["quality"] != "high" || all["maxResolution"] != "720p" {
		t.Errorf("Settings not applied: %v", all)
	}
}

func TestUpdateSettingsRejectsInvalidValueAtomically(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodPut, "/api/settings", `{"quality": "high", "maxResolution": "8k"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	rec = doRequest(env, http.MethodGet, "/api/settings", "")
	var all map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if all["quality"] != "medium" {
		t.Errorf("Rejected update must not be partially applied: %v", all)
	}
}

func TestUpdateSettingsUnknownKey(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodPut, "/api/settings", `{"theme": "dark"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/livez", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			rec := doRequest(env, http.MethodGet, path, "")
			if rec.Code != http.StatusOK {
				t.Errorf("Expected 200 from %s, got %d", path, rec.Code)
			}
		})
	}
}

func TestVersionEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodGet, "/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var info startup.BuildInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if info.GoVersion == "" {
		t.Error("Expected build info to include the Go version")
	}
}
