package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ChunkStore persists individual uploaded byte ranges in a per-session
// scratch directory under its root: <root>/<sessionID>/chunk_<index>.
// Writes to the same index are last-writer-wins; a single uploader per
// session is the caller's responsibility.
type ChunkStore struct {
	root string
}

// NewChunkStore returns a store rooted at dir, creating it if needed.
func NewChunkStore(dir string) (*ChunkStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk root: %w", err)
	}
	return &ChunkStore{root: dir}, nil
}

// SessionDir returns the scratch directory for a session.
func (s *ChunkStore) SessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// ChunkPath returns the scratch file for one chunk index.
func (s *ChunkStore) ChunkPath(sessionID string, index int) string {
	return filepath.Join(s.SessionDir(sessionID), fmt.Sprintf("chunk_%d", index))
}

// SaveChunk writes one chunk's payload, creating the session's scratch
// directory on first use.
func (s *ChunkStore) SaveChunk(sessionID string, index int, r io.Reader) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}
	if index < 0 {
		return fmt.Errorf("chunk index must be non-negative, got %d", index)
	}
	if err := os.MkdirAll(s.SessionDir(sessionID), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.Create(s.ChunkPath(sessionID, index))
	if err != nil {
		return fmt.Errorf("create chunk file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write chunk %d: %w", index, err)
	}
	return f.Close()
}

// RemoveSession deletes the whole scratch directory for a session.
func (s *ChunkStore) RemoveSession(sessionID string) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}
	return os.RemoveAll(s.SessionDir(sessionID))
}

// validSessionID rejects tokens that could escape the scratch root.
// Session IDs are opaque but still end up in a path join.
func validSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is empty")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}
