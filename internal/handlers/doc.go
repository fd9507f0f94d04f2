// Package handlers implements the HTTP surface: session lifecycle
// (create, list, delete), HLS playlist and segment delivery, source
// probing, hardware capability reporting, settings, and health probes.
package handlers
