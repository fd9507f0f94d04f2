package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iptv_bridge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iptv_bridge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "iptv_bridge_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Transcode session metrics
var (
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "iptv_bridge_sessions_active",
			Help: "Number of transcode sessions currently in the registry",
		},
	)

	SessionsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iptv_bridge_sessions_started_total",
			Help: "Total number of transcode sessions started",
		},
	)

	SessionsEndedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iptv_bridge_sessions_ended_total",
			Help: "Total number of transcode sessions ended, by reason",
		},
		[]string{"reason"}, // "deleted", "reaped", "shutdown"
	)

	SessionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iptv_bridge_sessions_rejected_total",
			Help: "Total number of rejected session creation requests, by cause",
		},
		[]string{"cause"}, // "limit", "spawn", "playlist_timeout"
	)

	SessionStartDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "iptv_bridge_session_start_duration_seconds",
			Help:    "Time from session creation until the playlist became servable",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)
)

// Encoder process metrics
var (
	EncoderProcessExitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iptv_bridge_encoder_process_exits_total",
			Help: "Total number of encoder process exits, by outcome",
		},
		[]string{"outcome"}, // "clean", "killed", "error"
	)

	PlanBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iptv_bridge_plan_builds_total",
			Help: "Total number of encode plans built, by video mode and backend",
		},
		[]string{"mode", "backend"},
	)
)

// Delivery metrics
var (
	PlaylistRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iptv_bridge_playlist_requests_total",
			Help: "Total number of playlist requests",
		},
		[]string{"status"}, // "ok", "not_found"
	)

	SegmentRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iptv_bridge_segment_requests_total",
			Help: "Total number of segment requests",
		},
		[]string{"status"}, // "ok", "not_found"
	)

	SegmentBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iptv_bridge_segment_bytes_served_total",
			Help: "Total segment bytes served to clients",
		},
	)
)

// Reaper metrics
var (
	ReaperSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iptv_bridge_reaper_sweeps_total",
			Help: "Total number of reaper sweeps",
		},
	)

	ReaperReapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iptv_bridge_reaper_reaped_total",
			Help: "Total number of sessions removed by the reaper",
		},
	)

	ReaperLastSweepTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "iptv_bridge_reaper_last_sweep_timestamp",
			Help: "Unix timestamp of the last reaper sweep",
		},
	)

	ReaperCleanupErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iptv_bridge_reaper_cleanup_errors_total",
			Help: "Total number of directory cleanup failures during reaping",
		},
	)
)

// Cache metrics (set by the cache collector)
var (
	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "iptv_bridge_cache_size_bytes",
			Help: "Total size of the transcode cache in bytes",
		},
	)

	CacheSessionDirs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "iptv_bridge_cache_session_dirs",
			Help: "Number of session directories in the transcode cache",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "iptv_bridge_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
