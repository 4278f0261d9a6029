package media

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// Naming constants shared across assembly, segmentation, and serving.
// Segment URLs are derived mechanically from this layout, so the names
// are part of the external contract.
const (
	AssembledFilename = "final_video.mp4"
	SegmentPrefix     = "see"
	SegmentExt        = ".mp4"
	SegmentDirname    = "segments"
)

// Layout maps asset identifiers to their on-disk locations under a
// single durable root: <root>/<assetID>/final_video.mp4 and
// <root>/<assetID>/segments/see<n>.mp4.
type Layout struct {
	Root string
}

// AssetDir returns the per-asset durable directory.
func (l Layout) AssetDir(assetID string) string {
	return filepath.Join(l.Root, assetID)
}

// AssembledPath returns the location of the concatenated artifact.
func (l Layout) AssembledPath(assetID string) string {
	return filepath.Join(l.AssetDir(assetID), AssembledFilename)
}

// SegmentDir returns the per-asset segment output directory.
func (l Layout) SegmentDir(assetID string) string {
	return filepath.Join(l.AssetDir(assetID), SegmentDirname)
}

// SegmentFilename returns the literal filename for a 1-based segment
// number, e.g. see1.mp4.
func SegmentFilename(n int) string {
	return fmt.Sprintf("%s%d%s", SegmentPrefix, n, SegmentExt)
}

// SegmentURL returns the externally addressable path for a segment.
func SegmentURL(assetID string, n int) string {
	return fmt.Sprintf("/%s/%s", assetID, SegmentFilename(n))
}

// ValidAssetID reports whether id is a well-formed UUID. Asset IDs are
// caller-supplied and reused as path components, so this predicate must
// pass before any path join on both the write and the serve path.
func ValidAssetID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
