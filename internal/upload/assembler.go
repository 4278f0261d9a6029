package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/your-org/segmentflow/internal/media"
)

// ErrChunkMissing indicates an expected chunk file was absent at
// assembly time. Assembly is all-or-nothing; the uploader must restart
// the session.
var ErrChunkMissing = errors.New("chunk missing")

// Assembler concatenates a session's chunks, in index order, into the
// asset's durable artifact and reclaims the scratch directory.
type Assembler struct {
	chunks *ChunkStore
	layout media.Layout
	logger *zap.Logger
}

// NewAssembler constructs an Assembler.
func NewAssembler(chunks *ChunkStore, layout media.Layout, logger *zap.Logger) *Assembler {
	return &Assembler{chunks: chunks, layout: layout, logger: logger}
}

// Assemble validates that every chunk in [0, totalChunks) is present,
// writes their concatenation to the asset's artifact path, and removes
// the session scratch directory. Any failure rolls back the partial
// artifact and the scratch data before returning. The caller must have
// validated assetID already.
func (a *Assembler) Assemble(ctx context.Context, sessionID, assetID string, totalChunks int) (string, error) {
	if totalChunks <= 0 {
		return "", fmt.Errorf("total chunks must be positive, got %d", totalChunks)
	}

	if err := os.MkdirAll(a.layout.AssetDir(assetID), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}

	final := a.layout.AssembledPath(assetID)
	if _, err := os.Stat(final); err == nil {
		a.logger.Warn("removing artifact left by a previous attempt",
			zap.String("asset_id", assetID), zap.String("path", final))
		if err := os.Remove(final); err != nil {
			return "", fmt.Errorf("remove stale artifact: %w", err)
		}
	}

	out, err := os.Create(final)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}

	if err := a.copyChunks(ctx, out, sessionID, totalChunks); err != nil {
		out.Close()
		a.rollback(sessionID, final)
		return "", err
	}
	if err := out.Close(); err != nil {
		a.rollback(sessionID, final)
		return "", fmt.Errorf("close artifact: %w", err)
	}

	if err := a.chunks.RemoveSession(sessionID); err != nil {
		a.logger.Warn("could not remove scratch dir after assembly",
			zap.String("session_id", sessionID), zap.Error(err))
	}

	a.logger.Info("assembled upload",
		zap.String("asset_id", assetID),
		zap.String("session_id", sessionID),
		zap.Int("total_chunks", totalChunks))
	return final, nil
}

func (a *Assembler) copyChunks(ctx context.Context, out io.Writer, sessionID string, totalChunks int) error {
	for i := 0; i < totalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		in, err := os.Open(a.chunks.ChunkPath(sessionID, i))
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: index %d of %d", ErrChunkMissing, i, totalChunks)
			}
			return fmt.Errorf("open chunk %d: %w", i, err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return fmt.Errorf("append chunk %d: %w", i, err)
		}
	}
	return nil
}

// rollback deletes the partial artifact and the scratch directory.
// Both removals are best-effort so cleanup stays idempotent.
func (a *Assembler) rollback(sessionID, final string) {
	if err := os.Remove(final); err != nil && !os.IsNotExist(err) {
		a.logger.Warn("could not remove partial artifact", zap.String("path", final), zap.Error(err))
	}
	if err := a.chunks.RemoveSession(sessionID); err != nil {
		a.logger.Warn("could not remove scratch dir", zap.String("session_id", sessionID), zap.Error(err))
	}
}
