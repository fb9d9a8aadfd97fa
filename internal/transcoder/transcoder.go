package transcoder

import (
	"context"
)

// Transcoder converts a source video into a single browser-playable MP4.
// Implementations write to a temporary sibling of outputPath and rename it
// into place only on success, so a caller never observes a partial file.
type Transcoder interface {
	// Transcode re-encodes inputPath to H.264/AAC MP4 at outputPath.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - inputPath: absolute path to the source video file
	//   - outputPath: absolute path the finished MP4 will occupy
	//
	// Returns an error if ffmpeg fails, times out, or is cancelled via ctx.
	Transcode(ctx context.Context, inputPath, outputPath string) error
}
