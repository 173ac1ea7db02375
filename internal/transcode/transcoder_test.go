package transcode

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// fakeRunner records the invocation and writes fake output where ffmpeg would.
type fakeRunner struct {
	name string
	args []string
	err  error
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	r.name = name
	r.args = args
	if r.err != nil {
		return r.err
	}
	// Last argument is the output path.
	return os.WriteFile(args[len(args)-1], []byte("mp3 bytes"), 0o600)
}

func TestTranscodeInvokesFFmpeg(t *testing.T) {
	runner := &fakeRunner{}
	f := NewFFmpeg("ffmpeg", "192k", time.Minute, WithRunner(runner))

	audio, err := f.Transcode(context.Background(), []byte("video bytes"))
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	if string(audio) != "mp3 bytes" {
		t.Fatalf("unexpected audio content %q", audio)
	}
	if runner.name != "ffmpeg" {
		t.Fatalf("unexpected binary %q", runner.name)
	}

	var sawNoVideo, sawCodec bool
	for i, arg := range runner.args {
		if arg == "-vn" {
			sawNoVideo = true
		}
		if arg == "-acodec" && i+1 < len(runner.args) && runner.args[i+1] == "libmp3lame" {
			sawCodec = true
		}
	}
	if !sawNoVideo || !sawCodec {
		t.Fatalf("expected mp3 extraction flags, got %v", runner.args)
	}
}

func TestTranscodeWrapsRunnerFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	f := NewFFmpeg("ffmpeg", "192k", time.Minute, WithRunner(runner))

	if _, err := f.Transcode(context.Background(), []byte("video")); !errors.Is(err, ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
}

func TestTranscodeTimeoutIsTranscodeError(t *testing.T) {
	blocker := runnerFunc(func(ctx context.Context, name string, args ...string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	f := NewFFmpeg("ffmpeg", "192k", 10*time.Millisecond, WithRunner(blocker))

	_, err := f.Transcode(context.Background(), []byte("video"))
	if !errors.Is(err, ErrTranscode) {
		t.Fatalf("expected ErrTranscode on timeout, got %v", err)
	}
}

type runnerFunc func(ctx context.Context, name string, args ...string) error

func (f runnerFunc) Run(ctx context.Context, name string, args ...string) error {
	return f(ctx, name, args...)
}
