package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const tmpSuffix = ".mimic.tmp"

// AtomicWrite writes r to a temp file next to dst and renames it into place, so
// readers of dst never observe a partial file.
func AtomicWrite(dst string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	tmp := dst + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}

// CopyFile copies src over dst, keeping the source mode and modification time.
func CopyFile(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open src: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat src: %w", err)
	}

	if err := AtomicWrite(dst, f, info.Mode().Perm()); err != nil {
		return err
	}

	if err := os.Chtimes(dst, time.Now(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to set mod time: %w", err)
	}

	return nil
}

func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}
