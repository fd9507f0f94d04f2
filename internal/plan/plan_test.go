package plan

import (
	"encoding/json"
	"strings"
	"testing"

	"iptv-bridge/internal/hwaccel"
)

func argString(args []string) string {
	return strings.Join(args, " ")
}

func softwareCaps() hwaccel.Capabilities {
	return hwaccel.Capabilities{Recommended: hwaccel.BackendSoftware}
}

func TestBuildCopyModeH264(t *testing.T) {
	p, err := Build(Options{
		VideoMode:      VideoModeCopy,
		AudioMixPreset: AudioPassthrough,
		VideoCodec:     "h264",
	}, softwareCaps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	args := argString(p.Args())
	if !strings.Contains(args, "-c:v copy") {
		t.Errorf("Copy mode must not re-encode video: %s", args)
	}
	if !strings.Contains(args, "-bsf:v h264_mp4toannexb") {
		t.Errorf("h264 copy requires the Annex-B bitstream filter: %s", args)
	}
	if p.Backend != "" {
		t.Errorf("Copy mode must not resolve a backend, got %q", p.Backend)
	}
}

func TestBuildCopyModeHevcBitstreamFilter(t *testing.T) {
	p, err := Build(Options{
		VideoMode:      VideoModeCopy,
		AudioMixPreset: AudioPassthrough,
		VideoCodec:     "hevc",
	}, softwareCaps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !strings.Contains(argString(p.Args()), "-bsf:v hevc_mp4toannexb") {
		t.Errorf("hevc copy requires hevc_mp4toannexb: %s", argString(p.Args()))
	}
}

func TestBitstreamFilterFallback(t *testing.T) {
	if got := bitstreamFilter("mpeg2video"); got != "extract_extradata" {
		t.Errorf("Expected extract_extradata fallback, got %q", got)
	}
}

func TestBuildEncodeSoftware720pMedium(t *testing.T) {
	p, err := Build(Options{
		VideoMode:      VideoModeEncode,
		HWEncoder:      "auto",
		Quality:        QualityMedium,
		MaxResolution:  "720p",
		AudioMixPreset: AudioPassthrough,
	}, softwareCaps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if p.Backend != hwaccel.BackendSoftware {
		t.Errorf("Expected software backend, got %q", p.Backend)
	}

	args := argString(p.Args())
	for _, want := range []string{
		"-vf scale=-2:720",
		"-c:v libx264",
		"-crf 23",
		"-force_key_frames expr:gte(t,n_forced*4)",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("Missing %q in: %s", want, args)
		}
	}
}

func TestBuildEncodeQualityTiers(t *testing.T) {
	tests := []struct {
		quality string
		wantCRF string
	}{
		{QualityHigh, "-crf 18"},
		{QualityMedium, "-crf 23"},
		{QualityLow, "-crf 28"},
	}

	for _, tt := range tests {
		t.Run(tt.quality, func(t *testing.T) {
			p, err := Build(Options{
				VideoMode:      VideoModeEncode,
				HWEncoder:      hwaccel.BackendSoftware,
				Quality:        tt.quality,
				MaxResolution:  "1080p",
				AudioMixPreset: AudioPassthrough,
			}, softwareCaps())
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if !strings.Contains(argString(p.Args()), tt.wantCRF) {
				t.Errorf("Expected %q for quality %s: %s", tt.wantCRF, tt.quality, argString(p.Args()))
			}
		})
	}
}

func TestBuildEncodeNvenc(t *testing.T) {
	p, err := Build(Options{
		VideoMode:      VideoModeEncode,
		HWEncoder:      hwaccel.BackendNvenc,
		Quality:        QualityHigh,
		MaxResolution:  "1080p",
		AudioMixPreset: AudioPassthrough,
	}, softwareCaps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	in := argString(p.CommandArgs("http://example.com/stream"))
	if !strings.Contains(in, "-hwaccel cuda") {
		t.Errorf("nvenc must decode on CUDA: %s", in)
	}

	out := argString(p.Args())
	for _, want := range []string{"scale_cuda=-2:1080", "-c:v h264_nvenc", "-cq 19"} {
		if !strings.Contains(out, want) {
			t.Errorf("Missing %q in: %s", want, out)
		}
	}
}

func TestBuildEncodeVaapi(t *testing.T) {
	p, err := Build(Options{
		VideoMode:      VideoModeEncode,
		HWEncoder:      hwaccel.BackendVaapi,
		Quality:        QualityMedium,
		MaxResolution:  "720p",
		AudioMixPreset: AudioPassthrough,
	}, softwareCaps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	in := argString(p.CommandArgs("http://example.com/stream"))
	if !strings.Contains(in, "-hwaccel_device "+hwaccel.DefaultRenderNode) {
		t.Errorf("vaapi must target the render node: %s", in)
	}

	out := argString(p.Args())
	for _, want := range []string{"scale_vaapi=w=-2:h=720", "-c:v h264_vaapi", "-qp 24"} {
		if !strings.Contains(out, want) {
			t.Errorf("Missing %q in: %s", want, out)
		}
	}
}

func TestBuildEncodeAmfSoftwareDecode(t *testing.T) {
	p, err := Build(Options{
		VideoMode:      VideoModeEncode,
		HWEncoder:      hwaccel.BackendAmf,
		Quality:        QualityLow,
		MaxResolution:  "480p",
		AudioMixPreset: AudioPassthrough,
	}, softwareCaps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	in := argString(p.CommandArgs("http://example.com/stream"))
	if strings.Contains(in, "-hwaccel") {
		t.Errorf("amf must decode in software: %s", in)
	}

	out := argString(p.Args())
	for _, want := range []string{"scale=-2:480,format=nv12", "-c:v h264_amf", "-qp_i 29"} {
		if !strings.Contains(out, want) {
			t.Errorf("Missing %q in: %s", want, out)
		}
	}
}

func TestResolveBackendAutoFollowsRecommendation(t *testing.T) {
	caps := hwaccel.Capabilities{Recommended: hwaccel.BackendQsv}
	backend, err := resolveBackend("auto", caps)
	if err != nil {
		t.Fatalf("resolveBackend failed: %v", err)
	}
	if backend.name() != hwaccel.BackendQsv {
		t.Errorf("Expected auto to follow recommendation, got %q", backend.name())
	}
}

func TestResolveBackendAutoDefaultsToSoftware(t *testing.T) {
	backend, err := resolveBackend("auto", hwaccel.Capabilities{})
	if err != nil {
		t.Fatalf("resolveBackend failed: %v", err)
	}
	if backend.name() != hwaccel.BackendSoftware {
		t.Errorf("Expected software fallback, got %q", backend.name())
	}
}

func TestResolveBackendUnknown(t *testing.T) {
	if _, err := resolveBackend("metal", softwareCaps()); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestBuildUnknownResolution(t *testing.T) {
	_, err := Build(Options{
		VideoMode:     VideoModeEncode,
		HWEncoder:     hwaccel.BackendSoftware,
		Quality:       QualityMedium,
		MaxResolution: "999p",
	}, softwareCaps())
	if err == nil {
		t.Error("Expected error for unknown resolution")
	}
}

func TestBuildUnknownVideoMode(t *testing.T) {
	if _, err := Build(Options{VideoMode: "remux"}, softwareCaps()); err == nil {
		t.Error("Expected error for unknown video mode")
	}
}

func TestAudioArgsPassthrough(t *testing.T) {
	args := audioArgs(Options{AudioMixPreset: AudioPassthrough, AudioCodec: "ac3", AudioChannels: 6})
	if argString(args) != "-c:a copy" {
		t.Errorf("Passthrough must copy, got: %s", argString(args))
	}
}

func TestAudioArgsSmartCopy(t *testing.T) {
	args := audioArgs(Options{AudioMixPreset: AudioAuto, AudioCodec: "aac", AudioChannels: 2})
	if argString(args) != "-c:a copy" {
		t.Errorf("Stereo aac under auto must copy, got: %s", argString(args))
	}
}

func TestAudioArgsAutoDownmixesSurround(t *testing.T) {
	args := argString(audioArgs(Options{AudioMixPreset: AudioAuto, AudioCodec: "ac3", AudioChannels: 6}))

	if !strings.Contains(args, panMatrices[AudioITU]) {
		t.Errorf("Auto must fall back to the ITU matrix: %s", args)
	}
	for _, want := range []string{"aresample=async=1", "-c:a aac", "-ar 48000", "-b:a 192k", "-ac 2"} {
		if !strings.Contains(args, want) {
			t.Errorf("Missing %q in: %s", want, args)
		}
	}
}

func TestAudioArgsNamedPresets(t *testing.T) {
	for _, preset := range []string{AudioITU, AudioNight, AudioCinematic} {
		t.Run(preset, func(t *testing.T) {
			args := argString(audioArgs(Options{AudioMixPreset: preset, AudioCodec: "aac", AudioChannels: 2}))
			if !strings.Contains(args, panMatrices[preset]) {
				t.Errorf("Expected %s matrix in: %s", preset, args)
			}
		})
	}
}

func TestCommandArgsHTTPReconnect(t *testing.T) {
	p, err := Build(Options{
		VideoMode:      VideoModeCopy,
		AudioMixPreset: AudioPassthrough,
		VideoCodec:     "h264",
	}, softwareCaps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	args := argString(p.CommandArgs("http://example.com/live.ts"))
	if !strings.Contains(args, "-reconnect 1") {
		t.Errorf("HTTP sources must enable reconnect: %s", args)
	}
	if !strings.Contains(args, "-i http://example.com/live.ts") {
		t.Errorf("Input must follow the input-side flags: %s", args)
	}

	local := argString(p.CommandArgs("/srv/media/file.ts"))
	if strings.Contains(local, "-reconnect") {
		t.Errorf("Local sources must not enable reconnect: %s", local)
	}
}

func TestCommandArgsSeekAfterInput(t *testing.T) {
	p, err := Build(Options{
		VideoMode:         VideoModeCopy,
		AudioMixPreset:    AudioPassthrough,
		VideoCodec:        "h264",
		SeekOffsetSeconds: 42.5,
	}, softwareCaps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	args := p.CommandArgs("http://example.com/vod.mp4")
	inputIdx, seekIdx := -1, -1
	for i, a := range args {
		switch a {
		case "-i":
			inputIdx = i
		case "-ss":
			seekIdx = i
		}
	}
	if inputIdx < 0 || seekIdx < 0 {
		t.Fatalf("Expected both -i and -ss in: %s", argString(args))
	}
	if seekIdx < inputIdx {
		t.Errorf("Seek must follow the input to stay post-open: %s", argString(args))
	}
	if args[seekIdx+1] != "42.500" {
		t.Errorf("Expected formatted offset, got %q", args[seekIdx+1])
	}
}

func TestOptionsSeekOffsetField(t *testing.T) {
	var opts Options
	if err := json.Unmarshal([]byte(`{"seekOffset": 90.5}`), &opts); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if opts.SeekOffsetSeconds != 90.5 {
		t.Errorf("Expected seekOffset to set the start offset, got %v", opts.SeekOffsetSeconds)
	}
}

func TestHLSArgs(t *testing.T) {
	args := argString(hlsArgs())
	for _, want := range []string{
		"-f hls",
		"-hls_time 4",
		"-hls_list_size 0",
		"-hls_playlist_type event",
		"-hls_flags append_list+independent_segments",
		"-hls_segment_filename seg%04d.ts",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("Missing %q in: %s", want, args)
		}
	}
	if !strings.HasSuffix(args, PlaylistName) {
		t.Errorf("Playlist must be the final argument: %s", args)
	}
}
