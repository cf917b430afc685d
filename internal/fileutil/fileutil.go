package fileutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies src to dst through a temporary sibling so readers never
// observe a partially written destination.
func CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	return WriteStream(dst, in)
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte) error {
	_, err := WriteStream(path, bytes.NewReader(data))
	return err
}

// WriteStream drains r into path via a temp file and rename. The parent
// directory is created when missing. On failure nothing is left at path.
func WriteStream(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create parent: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	written, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return written, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return written, err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return written, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return written, fmt.Errorf("rename: %w", err)
	}
	return written, nil
}
