// Package settings persists server-wide transcoding defaults (quality,
// resolution cap, hardware encoder, audio mix preset) in SQLite so they
// survive restarts. Keys that were never written fall back to built-in
// defaults, and stored values are re-validated on read so a stale value
// from an older release cannot poison plan construction.
package settings
