// Package plan resolves session options and detected hardware capabilities
// into a complete encoding-engine argument list. Planning is pure: it
// performs no I/O and spawns nothing, so every combination of video mode,
// encoder backend, quality tier, and audio preset is testable without an
// encoder installed.
package plan
