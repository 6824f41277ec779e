package manifest

import (
	"fmt"
	"os"
	"path/filepath"
)

// Save writes the collection to dir/output.json, replacing any existing
// manifest. The file is written to a temporary name and renamed into place
// so readers never observe a partial manifest.
func (e BuildElements) Save(dir string) error {
	data, err := Encode(e, dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+FileName+".*")
	if err != nil {
		return fmt.Errorf("create manifest temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, FileName)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("install manifest: %w", err)
	}
	return nil
}
