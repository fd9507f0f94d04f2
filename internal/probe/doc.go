// Package probe inspects upstream media URLs with ffprobe and reports the
// source codec layout: video/audio codec names, resolution, audio channel
// count, subtitle languages, and a compatibility verdict (direct play,
// remux, or full transcode). The HTTP layer uses the verdict to choose
// between video pass-through and re-encoding when creating a session.
package probe
