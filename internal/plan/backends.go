package plan

import (
	"fmt"
	"strconv"

	"iptv-bridge/internal/hwaccel"
)

// encoderBackend builds the backend-specific parts of an encode plan:
// hardware decode/input arguments and the encoder, scaler, and quality
// arguments for the output side.
type encoderBackend interface {
	name() string
	inputArgs() []string
	videoArgs(quality string, maxHeight int) []string
}

// resolveBackend maps the requested hwEncoder setting to a concrete
// backend, resolving "auto" through the hardware capability report.
func resolveBackend(hwEncoder string, caps hwaccel.Capabilities) (encoderBackend, error) {
	name := hwEncoder
	if name == "" || name == "auto" {
		name = caps.Recommended
		if name == "" {
			name = hwaccel.BackendSoftware
		}
	}

	switch name {
	case hwaccel.BackendSoftware:
		return softwareBackend{}, nil
	case hwaccel.BackendNvenc:
		return nvencBackend{}, nil
	case hwaccel.BackendVaapi:
		return vaapiBackend{}, nil
	case hwaccel.BackendQsv:
		return qsvBackend{}, nil
	case hwaccel.BackendAmf:
		return amfBackend{}, nil
	}
	return nil, fmt.Errorf("unknown hardware encoder: %q", hwEncoder)
}

// Quantization tables per tier. The hardware encoders run one point looser
// than libx264 at the same tier; rate-distortion at a given QP is weaker in
// fixed-function silicon than in the software encoder.
var (
	softwareCRF = map[string]int{QualityHigh: 18, QualityMedium: 23, QualityLow: 28}
	hardwareQP  = map[string]int{QualityHigh: 19, QualityMedium: 24, QualityLow: 29}
)

// softwareBackend encodes with libx264, decoding and scaling on the CPU.
type softwareBackend struct{}

func (softwareBackend) name() string        { return hwaccel.BackendSoftware }
func (softwareBackend) inputArgs() []string { return nil }

func (softwareBackend) videoArgs(quality string, maxHeight int) []string {
	return []string{
		"-vf", scaleFilter("scale", maxHeight),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", strconv.Itoa(softwareCRF[quality]),
		"-pix_fmt", "yuv420p",
	}
}

// nvencBackend decodes on CUDA and encodes with h264_nvenc, keeping frames
// on the GPU through the scaler.
type nvencBackend struct{}

func (nvencBackend) name() string { return hwaccel.BackendNvenc }

func (nvencBackend) inputArgs() []string {
	return []string{"-hwaccel", "cuda", "-hwaccel_output_format", "cuda"}
}

func (nvencBackend) videoArgs(quality string, maxHeight int) []string {
	return []string{
		"-vf", scaleFilter("scale_cuda", maxHeight),
		"-c:v", "h264_nvenc",
		"-preset", "p5",
		"-rc", "vbr",
		"-cq", strconv.Itoa(hardwareQP[quality]),
	}
}

// vaapiBackend decodes and encodes through the VAAPI render node.
type vaapiBackend struct{}

func (vaapiBackend) name() string { return hwaccel.BackendVaapi }

func (vaapiBackend) inputArgs() []string {
	return []string{
		"-hwaccel", "vaapi",
		"-hwaccel_device", hwaccel.DefaultRenderNode,
		"-hwaccel_output_format", "vaapi",
	}
}

func (vaapiBackend) videoArgs(quality string, maxHeight int) []string {
	return []string{
		"-vf", fmt.Sprintf("scale_vaapi=w=-2:h=%d", maxHeight),
		"-c:v", "h264_vaapi",
		"-qp", strconv.Itoa(hardwareQP[quality]),
	}
}

// qsvBackend decodes and encodes through Intel QuickSync.
type qsvBackend struct{}

func (qsvBackend) name() string { return hwaccel.BackendQsv }

func (qsvBackend) inputArgs() []string {
	return []string{"-hwaccel", "qsv", "-hwaccel_output_format", "qsv"}
}

func (qsvBackend) videoArgs(quality string, maxHeight int) []string {
	return []string{
		"-vf", fmt.Sprintf("scale_qsv=w=-1:h=%d", maxHeight),
		"-c:v", "h264_qsv",
		"-global_quality", strconv.Itoa(hardwareQP[quality]),
	}
}

// amfBackend encodes with AMD AMF. AMF has no usable hwaccel decode path
// here, so decode and scaling stay on the CPU and frames are uploaded to
// the encoder in nv12.
type amfBackend struct{}

func (amfBackend) name() string        { return hwaccel.BackendAmf }
func (amfBackend) inputArgs() []string { return nil }

func (amfBackend) videoArgs(quality string, maxHeight int) []string {
	qp := strconv.Itoa(hardwareQP[quality])
	return []string{
		"-vf", scaleFilter("scale", maxHeight) + ",format=nv12",
		"-c:v", "h264_amf",
		"-rc", "cqp",
		"-qp_i", qp,
		"-qp_p", qp,
	}
}

// scaleFilter emits a scaler targeting the given height with the width
// derived to preserve aspect ratio (rounded to an even value).
func scaleFilter(filter string, maxHeight int) string {
	return fmt.Sprintf("%s=-2:%d", filter, maxHeight)
}
