// Package transcode wraps the external video-to-audio extraction capability.
//
// The pipeline treats transcoding as opaque: bytes in, bytes out, or an
// error. The ffmpeg implementation stages content through temp files because
// ffmpeg seeks in its input; the invocation is bounded by the configured
// timeout and a timeout is indistinguishable from any other transcode
// failure to callers.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ErrTranscode wraps all extraction failures, timeouts included.
var ErrTranscode = errors.New("transcode failed")

// Transcoder converts video content to an audio track.
type Transcoder interface {
	Transcode(ctx context.Context, video []byte) ([]byte, error)
}

// CommandRunner executes external commands. Injectable for tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, truncateOutput(output))
	}
	return nil
}

func truncateOutput(output []byte) string {
	const limit = 512
	if len(output) > limit {
		output = output[len(output)-limit:]
	}
	return string(output)
}

// FFmpeg extracts MP3 audio using the ffmpeg binary.
type FFmpeg struct {
	path    string
	bitrate string
	timeout time.Duration
	runner  CommandRunner
}

// Option configures optional FFmpeg behavior.
type Option func(*FFmpeg)

// WithRunner sets a custom command runner (used in tests).
func WithRunner(runner CommandRunner) Option {
	return func(f *FFmpeg) {
		f.runner = runner
	}
}

// NewFFmpeg constructs a transcoder invoking the given ffmpeg binary.
func NewFFmpeg(path, bitrate string, timeout time.Duration, opts ...Option) *FFmpeg {
	f := &FFmpeg{
		path:    path,
		bitrate: bitrate,
		timeout: timeout,
		runner:  ExecRunner{},
	}
	if f.path == "" {
		f.path = "ffmpeg"
	}
	if f.bitrate == "" {
		f.bitrate = "192k"
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Transcode writes video to a temp file, extracts the audio track, and
// returns the MP3 content.
func (f *FFmpeg) Transcode(ctx context.Context, video []byte) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	workDir, err := os.MkdirTemp("", "mixdown-transcode-")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp dir: %v", ErrTranscode, err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input.video")
	outputPath := filepath.Join(workDir, "output.mp3")
	if err := os.WriteFile(inputPath, video, 0o600); err != nil {
		return nil, fmt.Errorf("%w: stage input: %v", ErrTranscode, err)
	}

	args := []string{
		"-i", inputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-ab", f.bitrate,
		"-y",
		outputPath,
	}
	if err := f.runner.Run(ctx, f.path, args...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscode, err)
	}

	audio, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", ErrTranscode, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrTranscode)
	}
	return audio, nil
}

// VerifyInstalled checks that the ffmpeg binary is runnable.
func (f *FFmpeg) VerifyInstalled(ctx context.Context) error {
	if err := f.runner.Run(ctx, f.path, "-version"); err != nil {
		return fmt.Errorf("ffmpeg not found or not executable: %w", err)
	}
	return nil
}

var _ Transcoder = (*FFmpeg)(nil)
