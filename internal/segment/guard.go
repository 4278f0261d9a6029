package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/your-org/segmentflow/internal/media"
)

var (
	// ErrInvalidInput marks a malformed asset ID or segment number.
	ErrInvalidInput = errors.New("invalid segment request")
	// ErrForbidden marks a path that resolves outside the asset's
	// segment directory. Distinct from not-found so a traversal probe
	// learns nothing about what exists out of tree.
	ErrForbidden = errors.New("forbidden segment path")
	// ErrSegmentNotFound marks a well-formed request for a segment
	// that does not exist.
	ErrSegmentNotFound = errors.New("segment not found")
)

// AccessGuard validates (assetID, segmentNumber) pairs against the
// durable storage layout before any bytes are served.
type AccessGuard struct {
	layout media.Layout
}

// NewAccessGuard constructs a guard over the given layout.
func NewAccessGuard(layout media.Layout) AccessGuard {
	return AccessGuard{layout: layout}
}

// Resolve returns the filesystem path for a segment, or an error
// classifying the request as invalid, forbidden, or not found.
func (g AccessGuard) Resolve(assetID string, segmentNumber int) (string, error) {
	if !media.ValidAssetID(assetID) {
		return "", fmt.Errorf("%w: malformed asset id", ErrInvalidInput)
	}
	if segmentNumber < 1 {
		return "", fmt.Errorf("%w: segment number must be 1 or greater", ErrInvalidInput)
	}

	dir := filepath.Clean(g.layout.SegmentDir(assetID))
	candidate := filepath.Clean(filepath.Join(dir, media.SegmentFilename(segmentNumber)))
	if !strings.HasPrefix(candidate, dir+string(os.PathSeparator)) {
		return "", ErrForbidden
	}

	info, err := os.Stat(candidate)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrSegmentNotFound
		}
		return "", fmt.Errorf("stat segment: %w", err)
	}
	if info.IsDir() {
		return "", ErrSegmentNotFound
	}
	return candidate, nil
}
