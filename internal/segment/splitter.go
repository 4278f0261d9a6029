package segment

import (
	"context"
	"errors"
	"fmt"
)

// ErrSplitTimeout indicates the external splitter exceeded its bounded
// execution time.
var ErrSplitTimeout = errors.New("splitter timed out")

// ToolError reports a non-zero exit from the external splitter along
// with its captured diagnostic stream.
type ToolError struct {
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("splitter exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("splitter exited with code %d: %s", e.ExitCode, e.Stderr)
}

// Splitter cuts a media file into fixed-duration segments written to
// outputDir, numbered from 1 per the shared naming convention. It is a
// narrow boundary around the external tool so the pipeline can be
// tested without ffmpeg installed.
type Splitter interface {
	Split(ctx context.Context, inputPath, outputDir string, segmentSeconds int) error
}
