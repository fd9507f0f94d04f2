// Package middleware provides HTTP middleware for the iptv-bridge service.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus HTTP metrics with low-cardinality path normalization
//   - Configurable filtering for segment requests and health checks
package middleware
