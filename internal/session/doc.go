// Package session manages the lifecycle of transcode sessions: spawning
// and supervising encoder processes, tracking session state, persisting
// metadata for crash recovery, and reaping idle sessions.
//
// A session moves through pending, starting, running, and finally stopped
// or error. The registry is the single authority over the live set; the
// reaper removes sessions no client has touched within the idle timeout.
package session
