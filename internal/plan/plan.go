package plan

import (
	"fmt"
	"strconv"
	"strings"

	"iptv-bridge/internal/hwaccel"
)

// Video handling modes.
const (
	VideoModeCopy   = "copy"
	VideoModeEncode = "encode"
)

// Quality tiers.
const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
)

// Audio mix presets.
const (
	AudioAuto        = "auto"
	AudioPassthrough = "passthrough"
	AudioITU         = "itu"
	AudioNight       = "night"
	AudioCinematic   = "cinematic"
)

// HLS output parameters. Segments are fixed-length, keyframe-aligned, and
// the playlist keeps every segment so players can seek across the whole
// session.
const (
	SegmentSeconds = 4
	PlaylistName   = "stream.m3u8"
	SegmentPattern = "seg%04d.ts"
	SegmentSuffix  = ".ts"
)

// resolutionHeights maps the maxResolution setting to a target pixel height.
var resolutionHeights = map[string]int{
	"480p":  480,
	"720p":  720,
	"1080p": 1080,
	"4k":    2160,
}

// Options holds the immutable-after-start encode configuration of a session.
type Options struct {
	VideoMode         string  `json:"videoMode"`
	HWEncoder         string  `json:"hwEncoder"`
	Quality           string  `json:"quality"`
	MaxResolution     string  `json:"maxResolution"`
	AudioMixPreset    string  `json:"audioMixPreset"`
	SeekOffsetSeconds float64 `json:"seekOffset"`
	VideoCodec        string  `json:"videoCodec"`
	AudioCodec        string  `json:"audioCodec"`
	AudioChannels     int     `json:"audioChannels"`
}

// Plan is a fully resolved set of encoder arguments for one session.
type Plan struct {
	VideoMode string
	Backend   string // resolved backend name, "" in copy mode

	inputArgs  []string
	outputArgs []string
}

// CommandArgs assembles the full encoding-engine argument list for the
// given source URL. The playlist path is relative: the process runs with
// the session directory as its working directory.
func (p *Plan) CommandArgs(sourceURL string) []string {
	args := make([]string, 0, len(p.inputArgs)+len(p.outputArgs)+8)
	args = append(args,
		"-hide_banner",
		"-loglevel", "error",
		"-fflags", "+genpts+discardcorrupt",
	)
	if strings.HasPrefix(sourceURL, "http://") || strings.HasPrefix(sourceURL, "https://") {
		args = append(args, "-reconnect", "1", "-reconnect_streamed", "1")
	}
	args = append(args, p.inputArgs...)
	args = append(args, "-i", sourceURL)
	args = append(args, p.outputArgs...)
	return args
}

// Args returns the output-side arguments. Exposed for tests and debugging.
func (p *Plan) Args() []string {
	return p.outputArgs
}

// Build turns the session options and detected hardware capabilities into
// a concrete encode plan. It is a pure function: no I/O, no process state.
func Build(opts Options, caps hwaccel.Capabilities) (*Plan, error) {
	p := &Plan{VideoMode: opts.VideoMode}

	switch opts.VideoMode {
	case VideoModeCopy:
		p.outputArgs = append(p.outputArgs, seekArgs(opts)...)
		p.outputArgs = append(p.outputArgs, mapArgs()...)
		p.outputArgs = append(p.outputArgs, "-c:v", "copy")
		p.outputArgs = append(p.outputArgs, "-bsf:v", bitstreamFilter(opts.VideoCodec))

	case VideoModeEncode:
		backend, err := resolveBackend(opts.HWEncoder, caps)
		if err != nil {
			return nil, err
		}
		p.Backend = backend.name()

		height, ok := resolutionHeights[opts.MaxResolution]
		if !ok {
			return nil, fmt.Errorf("unknown max resolution: %q", opts.MaxResolution)
		}
		quality, err := qualityTier(opts.Quality)
		if err != nil {
			return nil, err
		}

		p.inputArgs = backend.inputArgs()
		p.outputArgs = append(p.outputArgs, seekArgs(opts)...)
		p.outputArgs = append(p.outputArgs, mapArgs()...)
		p.outputArgs = append(p.outputArgs, backend.videoArgs(quality, height)...)
		p.outputArgs = append(p.outputArgs,
			"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", SegmentSeconds))

	default:
		return nil, fmt.Errorf("unknown video mode: %q", opts.VideoMode)
	}

	p.outputArgs = append(p.outputArgs, audioArgs(opts)...)
	p.outputArgs = append(p.outputArgs, hlsArgs()...)

	return p, nil
}

// seekArgs requests output to begin at the configured offset. The seek is
// placed after the input so it is applied post-open; upstream servers that
// reject range requests still work.
func seekArgs(opts Options) []string {
	if opts.SeekOffsetSeconds <= 0 {
		return nil
	}
	return []string{"-ss", strconv.FormatFloat(opts.SeekOffsetSeconds, 'f', 3, 64)}
}

// mapArgs selects the first video stream and, when present, the first
// audio stream.
func mapArgs() []string {
	return []string{"-map", "0:v:0", "-map", "0:a:0?"}
}

// bitstreamFilter returns the normalization filter required to copy the
// video elementary stream into a transport-stream container. MP4/MKV-style
// bitstreams carry parameter sets in extradata and must be converted to
// Annex-B layout.
func bitstreamFilter(videoCodec string) string {
	switch strings.ToLower(videoCodec) {
	case "hevc", "h265":
		return "hevc_mp4toannexb"
	case "h264", "avc":
		return "h264_mp4toannexb"
	default:
		return "extract_extradata"
	}
}

func qualityTier(quality string) (string, error) {
	switch quality {
	case QualityLow, QualityMedium, QualityHigh:
		return quality, nil
	}
	return "", fmt.Errorf("unknown quality tier: %q", quality)
}

func hlsArgs() []string {
	return []string{
		"-f", "hls",
		"-hls_time", strconv.Itoa(SegmentSeconds),
		"-hls_list_size", "0",
		"-hls_playlist_type", "event",
		"-hls_flags", "append_list+independent_segments",
		"-hls_segment_filename", SegmentPattern,
		PlaylistName,
	}
}
