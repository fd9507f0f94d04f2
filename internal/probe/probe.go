package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"iptv-bridge/internal/logging"
)

// Result describes what ffprobe found in an upstream source.
type Result struct {
	Video          string   `json:"video"`
	Audio          string   `json:"audio"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	AudioChannels  int      `json:"audioChannels"`
	Compatible     bool     `json:"compatible"`
	NeedsRemux     bool     `json:"needsRemux"`
	NeedsTranscode bool     `json:"needsTranscode"`
	Subtitles      []string `json:"subtitles"`
}

// ffprobe JSON output shapes (only the fields we read)
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Channels  int    `json:"channels"`
	Tags      struct {
		Language string `json:"language"`
	} `json:"tags"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
}

// Video codecs a browser can decode from an HLS transport stream without
// re-encoding (hevc still needs its bitstream normalized, but not a
// full encode).
var copyableVideoCodecs = map[string]bool{
	"h264": true,
	"hevc": true,
}

// Containers that players can consume directly without remuxing.
var directContainers = map[string]bool{
	"mpegts": true,
	"hls":    true,
}

// Prober inspects upstream media URLs with ffprobe.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// New creates a Prober using the given ffprobe binary.
func New(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     15 * time.Second,
	}
}

// Probe inspects the source URL and reports its codec layout and whether
// direct playback, remux, or a full transcode is required.
func (p *Prober) Probe(ctx context.Context, sourceURL string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-analyzeduration", "3000000",
		"-probesize", "5000000",
		sourceURL,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("failed to decode ffprobe output: %w", err)
	}

	result := resultFromOutput(&out)

	logging.Debug("Probed %s: video=%s audio=%s %dx%d channels=%d transcode=%v",
		sourceURL, result.Video, result.Audio, result.Width, result.Height,
		result.AudioChannels, result.NeedsTranscode)

	return result, nil
}

// resultFromOutput derives the compatibility verdict from raw ffprobe data.
// The first video and audio streams decide the plan; extra streams only
// contribute subtitle language tags.
func resultFromOutput(out *probeOutput) *Result {
	result := &Result{}

	for _, stream := range out.Streams {
		switch stream.CodecType {
		case "video":
			if result.Video == "" {
				result.Video = stream.CodecName
				result.Width = stream.Width
				result.Height = stream.Height
			}
		case "audio":
			if result.Audio == "" {
				result.Audio = stream.CodecName
				result.AudioChannels = stream.Channels
			}
		case "subtitle":
			lang := stream.Tags.Language
			if lang == "" {
				lang = stream.CodecName
			}
			result.Subtitles = append(result.Subtitles, lang)
		}
	}

	result.NeedsTranscode = !copyableVideoCodecs[result.Video]
	result.NeedsRemux = !isDirectContainer(out.Format.FormatName)
	result.Compatible = !result.NeedsTranscode && !result.NeedsRemux &&
		result.Audio == "aac" && result.AudioChannels == 2

	return result
}

// isDirectContainer checks the comma-separated ffprobe format name against
// the directly playable containers.
func isDirectContainer(formatName string) bool {
	for _, name := range strings.Split(formatName, ",") {
		if directContainers[strings.TrimSpace(name)] {
			return true
		}
	}
	return false
}
