package segment

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/your-org/segmentflow/pkg/storage/objectstore"
)

// ObjectStoreArchiver mirrors completed segment files into an object
// store bucket under <assetID>/<filename>. The local filesystem stays
// the serving source; archival is strictly additive.
type ObjectStoreArchiver struct {
	store  objectstore.Client
	logger *zap.Logger
}

// NewObjectStoreArchiver constructs an archiver backed by store.
func NewObjectStoreArchiver(store objectstore.Client, logger *zap.Logger) *ObjectStoreArchiver {
	return &ObjectStoreArchiver{store: store, logger: logger}
}

// ArchiveSegments uploads each segment file under the asset's key
// prefix. The first upload error aborts the run.
func (a *ObjectStoreArchiver) ArchiveSegments(ctx context.Context, assetID string, paths []string) error {
	for _, p := range paths {
		key := path.Join(assetID, filepath.Base(p))
		if err := a.store.PutFile(ctx, key, p, "video/mp4"); err != nil {
			return fmt.Errorf("archive %s: %w", key, err)
		}
	}
	a.logger.Info("archived segments",
		zap.String("asset_id", assetID), zap.Int("count", len(paths)))
	return nil
}
