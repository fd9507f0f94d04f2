// Package startup handles application configuration and boot-time logging.
//
// Configuration is loaded entirely from environment variables with sensible
// defaults, validated once at startup. The package also owns the startup
// banner, directory setup (cache root and settings database, both with
// write-access tests), encoder binary verification, route table logging,
// and the structured shutdown log helpers used by main.
package startup
