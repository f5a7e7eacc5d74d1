// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Prober runs ffprobe through toolrun so probe failures carry the same error
// classification as every other tool call. The pipeline uses it to recover
// narration duration when speech synthesis does not report one and to confirm
// that generated video files contain a video stream.
package ffprobe
