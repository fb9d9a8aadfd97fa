// Package codec wraps ffprobe to answer one question: can a browser play
// this file natively, or does it need transcoding first.
package codec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// browserCompatible lists codecs that play natively in the target browsers.
// Matches the original service's whitelist; h264/avc1/avc all name the same
// codec family as reported by different encoders.
var browserCompatible = map[string]bool{
	"h264": true,
	"avc1": true,
	"avc":  true,
}

// Config controls the ffprobe invocation.
type Config struct {
	FFprobePath string
	Timeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		FFprobePath: "ffprobe",
		Timeout:     10 * time.Second,
	}
}

// Prober detects the video codec of a file via ffprobe.
type Prober struct {
	cfg Config
}

func NewProber(cfg Config) *Prober {
	return &Prober{cfg: cfg}
}

// Probe returns the lowercase codec name of the first video stream, or ""
// if ffprobe fails or times out. A failed probe is never an error the
// caller needs to handle specially — it is treated identically to an
// unrecognized codec (needs transcoding).
func (p *Prober) Probe(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.cfg.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name",
		"-of", "csv=p=0",
		path,
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(out.String()))
}

// NeedsTranscoding reports whether path must be transcoded for browser
// playback. An empty/unrecognized codec is treated as "needs transcoding"
// to be safe, matching the original service's conservative default.
func (p *Prober) NeedsTranscoding(ctx context.Context, path string) bool {
	codec := p.Probe(ctx, path)
	if codec == "" {
		return true
	}
	return !browserCompatible[codec]
}

// Fingerprint builds the probe-cache key for a path+modtime pair so a
// replaced file never reuses a stale cached result.
func Fingerprint(path string, modTime time.Time) string {
	return fmt.Sprintf("%s@%d", path, modTime.UnixNano())
}
