package mapping

import (
	"fmt"
	"os"
	"path/filepath"
)

// Persister durably replaces the contents of path with data.
type Persister interface {
	Persist(path string, data []byte) error
}

// AtomicFilePersister writes to a temp file in the target directory, syncs it and
// renames it over the target, so readers see either the old or the new store.
type AtomicFilePersister struct{}

const mappingFilePermissions = 0o644

// Persist implements Persister
func (AtomicFilePersister) Persist(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create mapping directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp mapping file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp mapping file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp mapping file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp mapping file: %w", err)
	}
	if err := os.Chmod(tmpName, mappingFilePermissions); err != nil {
		return fmt.Errorf("chmod temp mapping file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename mapping file: %w", err)
	}
	committed = true

	// fsync the directory so the rename itself survives a crash
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
