package fileutil

import (
	"fmt"
	"io"
	"os"

	"github.com/google/renameio/v2"
)

// WriteFileAtomic writes data to path via a temp file and atomic rename, with
// an fsync before the rename. A reader never observes a partial file and a
// crash mid-write leaves the previous contents intact.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(mode))
	if err != nil {
		return fmt.Errorf("create pending file for %s: %w", path, err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write pending file for %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}

// CopyFile streams src to dst using io.Copy with default permissions (0o644).
func CopyFile(src, dst string) error {
	return CopyFileMode(src, dst, 0o644)
}

// CopyFileMode streams src to dst, setting the given file mode on dst.
func CopyFileMode(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// IsReadableFile reports whether path exists, is a regular file, and can be
// opened for reading.
func IsReadableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
