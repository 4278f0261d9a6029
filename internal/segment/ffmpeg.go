package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/segmentflow/internal/media"
)

const stderrTailBytes = 2048

// FFmpegSplitter shells out to ffmpeg for time-based stream-copy
// segmentation. All streams are copied verbatim (no re-encoding), each
// segment's timestamps are reset to zero, and output numbering starts
// at 1.
type FFmpegSplitter struct {
	Binary  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewFFmpegSplitter constructs a splitter with the given binary and
// per-invocation timeout.
func NewFFmpegSplitter(binary string, timeout time.Duration, logger *zap.Logger) *FFmpegSplitter {
	if binary == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &FFmpegSplitter{Binary: binary, Timeout: timeout, Logger: logger}
}

// Split runs one bounded ffmpeg invocation. Stdout and stderr are
// captured separately; ffmpeg writes its diagnostics to stderr, and a
// tail of that stream travels with any tool failure.
func (f *FFmpegSplitter) Split(ctx context.Context, inputPath, outputDir string, segmentSeconds int) error {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	pattern := filepath.Join(outputDir, media.SegmentPrefix+"%d"+media.SegmentExt)
	cmd := exec.CommandContext(ctx, f.Binary,
		"-i", inputPath,
		"-c", "copy",
		"-map", "0",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-f", "segment",
		"-reset_timestamps", "1",
		"-segment_start_number", "1",
		pattern,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	f.Logger.Info("running splitter", zap.String("cmd", strings.Join(cmd.Args, " ")))
	err := cmd.Run()

	if stderr.Len() > 0 {
		f.Logger.Debug("splitter stderr", zap.String("stderr", stderr.String()))
	}
	if stdout.Len() > 0 {
		f.Logger.Debug("splitter stdout", zap.String("stdout", stdout.String()))
	}

	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrSplitTimeout, f.Timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		diag := redactPaths(stderr.String(), inputPath, outputDir)
		return &ToolError{ExitCode: exitErr.ExitCode(), Stderr: tail(diag, stderrTailBytes)}
	}
	return fmt.Errorf("run splitter: %w", err)
}

// redactPaths strips the filesystem locations we handed the tool from
// its diagnostics, leaving only base names. ffmpeg echoes its input
// path into stderr, and the failed-status message must not expose
// server paths to the polling client.
func redactPaths(s, inputPath, outputDir string) string {
	s = strings.ReplaceAll(s, outputDir, media.SegmentDirname)
	s = strings.ReplaceAll(s, inputPath, filepath.Base(inputPath))
	return s
}

// tail returns at most n trailing bytes of s; ffmpeg prints the actual
// failure reason last.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
