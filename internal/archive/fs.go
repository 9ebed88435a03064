package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore keeps artifacts as plain files under a root directory.
type FSStore struct {
	root string
}

// NewFSStore returns a store rooted at dir. The root itself is created on
// demand by Write, not here, so a read-only invocation leaves no trace.
func NewFSStore(root string) *FSStore {
	if root == "" {
		root = "."
	}
	return &FSStore{root: root}
}

// Exists reports whether an artifact file is present at path.
func (s *FSStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.root, path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat artifact %s: %w", path, err)
}

// Write creates parent directories as needed and writes the artifact in one
// call.
func (s *FSStore) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := filepath.Join(s.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("create artifact dir for %s: %w", full, err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return fmt.Errorf("write artifact %s: %w", full, err)
	}
	return nil
}
