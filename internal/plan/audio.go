package plan

// Stereo downmix pan matrices for 5.1-and-wider sources. ITU-R BS.775 is
// the neutral default; night compresses the dynamic range by boosting
// dialogue and dropping the LFE; cinematic keeps the surrounds and LFE hot.
var panMatrices = map[string]string{
	AudioITU:       "pan=stereo|FL<FL+0.707*FC+0.707*BL+0.5*LFE|FR<FR+0.707*FC+0.707*BR+0.5*LFE",
	AudioNight:     "pan=stereo|FL<0.5*FL+FC+0.5*BL|FR<0.5*FR+FC+0.5*BR",
	AudioCinematic: "pan=stereo|FL<FL+0.9*FC+0.8*BL+0.3*LFE|FR<FR+0.9*FC+0.8*BR+0.3*LFE",
}

// audioArgs builds the audio half of the encoder command line.
//
// Passthrough always copies. Auto copies when the source is already stereo
// AAC; anything else is downmixed to stereo AAC with the selected pan
// matrix (auto picks ITU) plus async resampling to absorb upstream clock
// drift.
func audioArgs(opts Options) []string {
	if opts.AudioMixPreset == AudioPassthrough {
		return []string{"-c:a", "copy"}
	}

	if opts.AudioMixPreset == AudioAuto &&
		opts.AudioCodec == "aac" && opts.AudioChannels == 2 {
		return []string{"-c:a", "copy"}
	}

	matrix, ok := panMatrices[opts.AudioMixPreset]
	if !ok {
		matrix = panMatrices[AudioITU]
	}

	return []string{
		"-af", matrix + ",aresample=async=1",
		"-c:a", "aac",
		"-ar", "48000",
		"-b:a", "192k",
		"-ac", "2",
	}
}
