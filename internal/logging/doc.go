// Package logging provides leveled logging for the iptv-bridge service.
//
// The log level is resolved from the DEBUG and LOG_LEVEL environment
// variables and can be overridden at runtime with SetLevel (used by tests).
// Messages are written through the standard library log package so they
// share its timestamp formatting and output destination.
package logging
