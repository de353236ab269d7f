package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ImageStore reads and writes raw image bytes by opaque path.
type ImageStore interface {
	// Save streams an uploaded image to storage and returns its path and size.
	Save(filename string, r io.Reader) (path string, size int64, err error)
	// Read returns the raw bytes for a previously saved image.
	Read(path string) ([]byte, error)
	// Remove deletes a stored image. Missing files are not an error.
	Remove(path string) error
}

// DiskImageStore stores images as files under a base directory.
type DiskImageStore struct {
	baseDir string
}

// NewDiskImageStore creates the base directory if needed.
func NewDiskImageStore(baseDir string) (*DiskImageStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &DiskImageStore{baseDir: baseDir}, nil
}

func (d *DiskImageStore) Save(filename string, r io.Reader) (string, int64, error) {
	// filepath.Base guards against path traversal in client-supplied names
	path := filepath.Join(d.baseDir, filepath.Base(filename))

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create image file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write image file: %w", err)
	}
	return path, size, nil
}

func (d *DiskImageStore) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

func (d *DiskImageStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove image file: %w", err)
	}
	return nil
}
