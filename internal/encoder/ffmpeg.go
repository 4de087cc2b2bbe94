package encoder

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	apperrors "github.com/captioncast/captioncast/internal/errors"
	"github.com/captioncast/captioncast/internal/logging"
	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	clipSeconds  = 8
	frameRate    = 30
	stderrTailSz = 4096
)

// Job describes one caption render.
type Job struct {
	Background string
	Font       string
	Output     string
	TopText    string
	BottomText string
}

// Encoder turns a Job into a video file at Job.Output.
type Encoder interface {
	Encode(ctx context.Context, job Job) error
}

// MetricsRecorder receives encoder timings.
type MetricsRecorder interface {
	RecordEncode(d time.Duration, err error)
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// FFmpeg runs the ffmpeg binary as a child process.
type FFmpeg struct {
	binary  string
	runner  commandRunner
	metrics MetricsRecorder
	logger  *logging.Logger
}

// Option configures an FFmpeg encoder.
type Option func(*FFmpeg)

// WithMetrics records encode durations.
func WithMetrics(m MetricsRecorder) Option {
	return func(f *FFmpeg) {
		f.metrics = m
	}
}

// WithLogger sets the encoder logger.
func WithLogger(l *logging.Logger) Option {
	return func(f *FFmpeg) {
		f.logger = l
	}
}

// NewFFmpeg creates an encoder for the given binary path.
func NewFFmpeg(binary string, opts ...Option) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	f := &FFmpeg{
		binary: binary,
		runner: execRunner{},
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Args returns the full ffmpeg argument list for a job.
func Args(job Job) []string {
	return ffmpeg.Input(job.Background, ffmpeg.KwArgs{"stream_loop": -1}).
		Output(job.Output, ffmpeg.KwArgs{
			"t":        clipSeconds,
			"vf":       FilterGraph(job.Font, job.TopText, job.BottomText),
			"r":        frameRate,
			"c:v":      "libx264",
			"pix_fmt":  "yuv420p",
			"movflags": "+faststart",
		}).
		OverWriteOutput().
		GetArgs()
}

// Encode runs ffmpeg to completion. The run is detached from ctx
// cancellation so a dropped client does not kill a half-written encode;
// ctx values such as the correlation ID are kept.
func (f *FFmpeg) Encode(ctx context.Context, job Job) error {
	args := Args(job)
	start := time.Now()

	f.logger.DebugWithContext(ctx, "starting encoder", "binary", f.binary, "output", job.Output)
	stderr, err := f.runner.Run(context.WithoutCancel(ctx), f.binary, args...)
	elapsed := time.Since(start)
	if f.metrics != nil {
		f.metrics.RecordEncode(elapsed, err)
	}

	if err != nil {
		if rmErr := os.Remove(job.Output); rmErr != nil && !os.IsNotExist(rmErr) {
			f.logger.WarnWithContext(ctx, "failed to remove partial output", "output", job.Output, "error", rmErr)
		}
		return &apperrors.ErrEncode{
			Output: job.Output,
			Stderr: tail(stderr, stderrTailSz),
			Err:    errors.Wrap(err, f.binary),
		}
	}

	if _, statErr := os.Stat(job.Output); statErr != nil {
		return &apperrors.ErrEncode{
			Output: job.Output,
			Stderr: tail(stderr, stderrTailSz),
			Err:    errors.WithStack(errors.New("encoder exited cleanly but produced no output")),
		}
	}

	f.logger.InfoWithContext(ctx, "encode finished", "output", job.Output, "duration_ms", elapsed.Milliseconds())
	return nil
}

func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
