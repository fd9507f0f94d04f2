// Package hwaccel detects which hardware video encoders are usable on the
// host: NVENC (NVIDIA), VAAPI (Linux render nodes), QSV (Intel QuickSync),
// and AMF (AMD). Detection shells out to nvidia-smi and the ffmpeg encoder
// listing and caches the result for five minutes. The recommended backend
// is consumed by the encode planner when a session requests hwEncoder=auto.
package hwaccel
