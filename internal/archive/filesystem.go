// Package archive mirrors daemon state snapshots off the primary state
// file, optionally encrypted.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"moltd/internal/daemon"
)

// FilesystemArchive stores snapshots as files in a directory.
type FilesystemArchive struct {
	dir string
	enc daemon.Encryptor
}

var _ daemon.Archive = (*FilesystemArchive)(nil)

// NewFilesystemArchive creates an archive rooted at dir. enc may be nil
// for unencrypted snapshots.
func NewFilesystemArchive(dir string, enc daemon.Encryptor) (*FilesystemArchive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	if enc == nil {
		enc = passthrough{}
	}
	return &FilesystemArchive{dir: dir, enc: enc}, nil
}

func (a *FilesystemArchive) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	var buf bytes.Buffer
	if err := a.enc.Encrypt(r, &buf); err != nil {
		return fmt.Errorf("encrypting archive payload: %w", err)
	}

	destPath := filepath.Join(a.dir, name)

	// Temp file in the same directory so the rename is atomic.
	tmpFile, err := os.CreateTemp(a.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, &buf); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// Validate verifies the directory is writable.
func (a *FilesystemArchive) Validate(ctx context.Context) error {
	f, err := os.CreateTemp(a.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("archive directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// passthrough is the nil-encryptor fallback.
type passthrough struct{}

func (passthrough) Encrypt(r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}

func (passthrough) Decrypt(r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}
