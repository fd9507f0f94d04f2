package hwaccel

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"iptv-bridge/internal/logging"
)

// Backend identifies a hardware encoder family.
const (
	BackendSoftware = "software"
	BackendNvenc    = "nvenc"
	BackendVaapi    = "vaapi"
	BackendQsv      = "qsv"
	BackendAmf      = "amf"
)

// DefaultRenderNode is the VAAPI render node probed during detection.
const DefaultRenderNode = "/dev/dri/renderD128"

// Capabilities reports which hardware encoders are usable on this host.
type Capabilities struct {
	Nvidia      bool   `json:"nvidia"`
	VAAPI       bool   `json:"vaapi"`
	QSV         bool   `json:"qsv"`
	AMF         bool   `json:"amf"`
	Recommended string `json:"recommended"`
}

// Detector probes the host for hardware acceleration support. Detection is
// expensive (it shells out to ffmpeg and nvidia-smi), so results are cached.
type Detector struct {
	ffmpegPath string

	mu         sync.Mutex
	caps       *Capabilities
	lastDetect time.Time
	cacheTTL   time.Duration
}

// NewDetector creates a detector using the given ffmpeg binary.
func NewDetector(ffmpegPath string) *Detector {
	return &Detector{
		ffmpegPath: ffmpegPath,
		cacheTTL:   5 * time.Minute,
	}
}

// GetCapabilities returns the detected hardware capabilities, refreshing
// the cached result when it has expired.
func (d *Detector) GetCapabilities() Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.caps != nil && time.Since(d.lastDetect) < d.cacheTTL {
		return *d.caps
	}

	logging.Info("Detecting hardware acceleration capabilities")

	encoders := d.listEncoders()

	caps := &Capabilities{}
	if hasNvidiaGPU() && strings.Contains(encoders, "h264_nvenc") {
		caps.Nvidia = true
	}
	if hasRenderNode() && strings.Contains(encoders, "h264_vaapi") {
		caps.VAAPI = true
	}
	if strings.Contains(encoders, "h264_qsv") {
		caps.QSV = true
	}
	if strings.Contains(encoders, "h264_amf") {
		caps.AMF = true
	}
	caps.Recommended = recommend(caps)

	logging.Info("Hardware capabilities: nvidia=%v vaapi=%v qsv=%v amf=%v recommended=%s",
		caps.Nvidia, caps.VAAPI, caps.QSV, caps.AMF, caps.Recommended)

	d.caps = caps
	d.lastDetect = time.Now()
	return *caps
}

// recommend picks the preferred backend. NVENC first (dedicated encode
// silicon), then QSV, then VAAPI, then AMF.
func recommend(caps *Capabilities) string {
	switch {
	case caps.Nvidia:
		return BackendNvenc
	case caps.QSV:
		return BackendQsv
	case caps.VAAPI:
		return BackendVaapi
	case caps.AMF:
		return BackendAmf
	default:
		return BackendSoftware
	}
}

// listEncoders returns ffmpeg's encoder listing, or "" when ffmpeg is
// unavailable (all hardware checks then fail closed to software).
func (d *Detector) listEncoders() string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.ffmpegPath, "-hide_banner", "-encoders")
	output, err := cmd.Output()
	if err != nil {
		logging.Warn("Failed to list encoders: %v", err)
		return ""
	}
	return string(output)
}

func hasNvidiaGPU() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	return cmd.Run() == nil
}

func hasRenderNode() bool {
	_, err := os.Stat(DefaultRenderNode)
	return err == nil
}

// IsValidBackend reports whether name is a recognized encoder backend.
func IsValidBackend(name string) bool {
	switch name {
	case BackendSoftware, BackendNvenc, BackendVaapi, BackendQsv, BackendAmf:
		return true
	}
	return false
}
