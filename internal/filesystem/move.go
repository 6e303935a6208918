package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MoveFile moves src to dst, creating dst's parent directories as needed.
// os.Rename is tried first; cross-device moves fall back to copy+delete
// with an fsync before the source is removed.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil { //nolint:gosec // G301: gallery directories are world-readable
		return fmt.Errorf("creating target directory: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	if copyErr := copyFile(src, dst); copyErr != nil {
		return fmt.Errorf("copy fallback: %w (rename error: %w)", copyErr, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("removing source after copy: %w", err)
	}
	return nil
}

// copyFile copies src to dst and flushes the result to disk.
func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: callers validate containment first
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst) //nolint:gosec // G304: callers validate containment first
	if err != nil {
		return err
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}
	return out.Close()
}
