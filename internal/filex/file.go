// Package filex contains filesystem helpers for the on-device photo cache.
package filex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (and parents) if missing and returns its path.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// PhotoPath returns the local cache path for the photo owned by recordID.
// Photos are keyed by record identifier, not by original filename, so a
// re-upload after a rename still maps to the same asset.
func PhotoPath(dir string, recordID string) string {
	return filepath.Join(dir, recordID+".photo")
}

// PhotoExists reports whether the photo for recordID is present locally.
func PhotoExists(dir string, recordID string) bool {
	_, err := os.Stat(PhotoPath(dir, recordID))
	return err == nil
}

// WritePhoto stores the photo bytes for recordID, creating dir if needed.
func WritePhoto(dir string, recordID string, payload []byte) error {
	if _, err := EnsureDir(dir); err != nil {
		return err
	}
	return os.WriteFile(PhotoPath(dir, recordID), payload, 0o660)
}

// ReadPhoto loads the locally cached photo for recordID.
func ReadPhoto(dir string, recordID string) ([]byte, error) {
	b, err := os.ReadFile(PhotoPath(dir, recordID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("read photo %s: %w", recordID, err)
	}
	return b, nil
}
