package transcoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// FFmpegConfig holds configuration for the FFmpeg transcoder.
type FFmpegConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	// If empty, "ffmpeg" will be used (assumes it's in PATH).
	FFmpegPath string

	// VideoCodec is the video codec to use.
	// Default: libx264
	VideoCodec string

	// VideoPreset controls the encoding speed/quality tradeoff.
	// Options: ultrafast, superfast, veryfast, faster, fast, medium, slow, slower, veryslow
	// Default: fast
	VideoPreset string

	// CRF is the constant rate factor; lower is higher quality.
	// Default: 23
	CRF int

	// AudioCodec is the audio codec to use.
	// Default: aac
	AudioCodec string

	// AudioBitrate is the target audio bitrate, e.g. "192k".
	AudioBitrate string

	// Timeout bounds a single transcode run.
	// Default: 1 hour, matching the longest fitness session in the library.
	Timeout time.Duration
}

// DefaultFFmpegConfig returns an FFmpegConfig with production-ready defaults.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:   "ffmpeg",
		VideoCodec:   "libx264",
		VideoPreset:  "fast",
		CRF:          23,
		AudioCodec:   "aac",
		AudioBitrate: "192k",
		Timeout:      time.Hour,
	}
}

// FFmpegTranscoder implements Transcoder using the ffmpeg CLI.
type FFmpegTranscoder struct {
	config FFmpegConfig
}

var _ Transcoder = (*FFmpegTranscoder)(nil)

func NewFFmpegTranscoder(cfg FFmpegConfig) *FFmpegTranscoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	return &FFmpegTranscoder{config: cfg}
}

// Transcode re-encodes inputPath to H.264/AAC MP4 with faststart metadata,
// writing to a .tmp sibling of outputPath and renaming only once ffmpeg
// exits cleanly.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, inputPath, outputPath string) error {
	if err := t.validateInput(inputPath); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tempPath := outputPath + ".tmp"
	defer os.Remove(tempPath) // no-op once the rename below succeeds

	runCtx := ctx
	var cancel context.CancelFunc
	if t.config.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	args := t.buildFFmpegArgs(inputPath, tempPath)
	cmd := exec.CommandContext(runCtx, t.config.FFmpegPath, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("transcoding timed out: %w", runCtx.Err())
		}
		if ctx.Err() != nil {
			return fmt.Errorf("transcoding cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	if err := os.Rename(tempPath, outputPath); err != nil {
		return fmt.Errorf("failed to finalize transcoded file: %w", err)
	}

	return nil
}

func (t *FFmpegTranscoder) validateInput(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", inputPath)
		}
		return fmt.Errorf("failed to access input file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a file: %s", inputPath)
	}

	return nil
}

// buildFFmpegArgs constructs the FFmpeg command arguments, matching the
// original service's transcode_to_h264 parameters.
func (t *FFmpegTranscoder) buildFFmpegArgs(inputPath, tempPath string) []string {
	return []string{
		"-i", inputPath,
		"-c:v", t.config.VideoCodec,
		"-preset", t.config.VideoPreset,
		"-crf", fmt.Sprintf("%d", t.config.CRF),
		"-c:a", t.config.AudioCodec,
		"-b:a", t.config.AudioBitrate,
		"-movflags", "+faststart",
		"-f", "mp4",
		"-y",
		tempPath,
	}
}
