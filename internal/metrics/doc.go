// Package metrics defines the Prometheus metrics exported by iptv-bridge.
//
// Metrics are grouped by concern:
//   - HTTP request counters, durations, and in-flight gauge
//   - Transcode session lifecycle (started, ended by reason, rejected by cause)
//   - Encoder process exits by outcome
//   - Playlist/segment delivery counters and bytes served
//   - Reaper sweep activity
//   - Transcode cache size, updated by CacheCollector
//
// All metrics use the iptv_bridge_ prefix and are registered via promauto
// at package initialization.
package metrics
