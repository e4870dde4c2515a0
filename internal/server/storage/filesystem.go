package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// Store defines the interface for file storage backends.
// This allows swapping the filesystem for another backend later without
// touching the pipeline or the watchdog.
type Store interface {
	SaveTemp(data io.Reader) (string, error)
	Exists(name string) (bool, error)
	Promote(tempPath, name string) error
	Delete(name string) error
	DeleteTemp(path string) error
	EnsureDirs() error
}

// FileSystemStore keeps uploads on the local filesystem: incoming parts
// land in the staging directory and are renamed into the upload directory
// once a name has been assigned.
type FileSystemStore struct {
	uploadDir  string
	stagingDir string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(uploadDir, stagingDir string) *FileSystemStore {
	return &FileSystemStore{uploadDir: uploadDir, stagingDir: stagingDir}
}

// EnsureDirs creates the upload and staging directories if they don't exist.
func (fs *FileSystemStore) EnsureDirs() error {
	for _, dir := range []string{fs.uploadDir, fs.stagingDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}
	return nil
}

// SaveTemp writes data to a uniquely named file in the staging directory
// and returns its path.
func (fs *FileSystemStore) SaveTemp(data io.Reader) (string, error) {
	file, err := os.CreateTemp(fs.stagingDir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}

	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to write staging file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to close staging file: %w", err)
	}

	return file.Name(), nil
}

// Exists reports whether name is already taken in the upload directory.
func (fs *FileSystemStore) Exists(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(fs.uploadDir, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", name, err)
}

// Promote moves a staged file into the upload directory under name.
// Rename is atomic on the same volume; across volumes it falls back to
// copy+delete.
func (fs *FileSystemStore) Promote(tempPath, name string) error {
	dest := filepath.Join(fs.uploadDir, name)

	if err := os.Rename(tempPath, dest); err == nil {
		return nil
	} else if !isCrossDevice(err) {
		return fmt.Errorf("failed to move %s into upload directory: %w", tempPath, err)
	}

	src, err := os.Open(tempPath)
	if err != nil {
		return fmt.Errorf("failed to open staged file %s: %w", tempPath, err)
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to copy %s to upload directory: %w", tempPath, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to finish copy of %s: %w", tempPath, err)
	}

	os.Remove(tempPath)
	return nil
}

// Delete removes a stored file from the upload directory. A missing file
// is not an error.
func (fs *FileSystemStore) Delete(name string) error {
	path := filepath.Join(fs.uploadDir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return nil
}

// DeleteTemp removes a staged file. A missing file is not an error.
func (fs *FileSystemStore) DeleteTemp(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete staging file %s: %w", path, err)
	}
	return nil
}

func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
