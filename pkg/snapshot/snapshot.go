// Package snapshot persists and restores the ANN Index (C5): write-temp +
// rename for atomicity, NotFound on a missing file, Corrupt on a parse
// failure.
package snapshot

import (
	"os"
	"path/filepath"

	"github.com/embedsvc/sentencehnsw/pkg/apperr"
	"github.com/embedsvc/sentencehnsw/pkg/index"
)

// Save writes idx to path atomically by writing to a temp file in the same
// directory and renaming over the destination.
func Save(idx *index.HNSW, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap("snapshot.Save", apperr.ErrPersist, err)
	}

	tmp, err := os.CreateTemp(dir, ".hnsw-snapshot-*")
	if err != nil {
		return apperr.Wrap("snapshot.Save", apperr.ErrPersist, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := idx.Save(tmp); err != nil {
		tmp.Close()
		return apperr.Wrap("snapshot.Save", apperr.ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap("snapshot.Save", apperr.ErrPersist, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return apperr.Wrap("snapshot.Save", apperr.ErrPersist, err)
	}
	return nil
}

// Restore reads the snapshot at path into idx. A missing file is
// ErrNotFound; a file that fails to parse is ErrCorrupt. Both are treated
// by callers as "start empty".
func Restore(idx *index.HNSW, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.Wrap("snapshot.Restore", apperr.ErrNotFound, err)
		}
		return apperr.Wrap("snapshot.Restore", apperr.ErrPersist, err)
	}
	defer f.Close()

	if err := idx.Load(f); err != nil {
		return apperr.Wrap("snapshot.Restore", apperr.ErrCorrupt, err)
	}
	return nil
}
