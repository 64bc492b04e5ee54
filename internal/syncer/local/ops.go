package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mimic/internal/util"
)

var ErrSourceMissing = errors.New("source does not exist")

// Ops performs mutations against a destination tree. The destination is owned
// exclusively by one worker, so type changes (file <-> directory) are resolved
// by replacing whatever is at the target.
type Ops struct{}

func (Ops) CopyRecursiveOverwrite(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceMissing, src)
		}
		return fmt.Errorf("failed to stat src: %w", err)
	}

	if !info.IsDir() {
		if err := removeIfDir(dst); err != nil {
			return err
		}
		if err := util.CopyFile(src, dst); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrSourceMissing, src)
			}
			return err
		}
		return nil
	}

	return copyDir(src, dst)
}

func copyDir(src, dst string) error {
	if dstInfo, err := os.Lstat(dst); err == nil && !dstInfo.IsDir() {
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("failed to replace file with directory: %w", err)
		}
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("failed to create dst dir: %w", err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceMissing, src)
		}
		return fmt.Errorf("failed to read dir %s: %w", src, err)
	}

	// a bad child does not stop the rest of the tree
	var errs []error
	for _, entry := range entries {
		childSrc := filepath.Join(src, entry.Name())
		childDst := filepath.Join(dst, entry.Name())

		info, err := os.Stat(childSrc)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("failed to stat %s: %w", childSrc, err))
			}
			continue
		}

		if info.IsDir() {
			if err := copyDir(childSrc, childDst); err != nil && !errors.Is(err, ErrSourceMissing) {
				errs = append(errs, err)
			}
			continue
		}

		if err := removeIfDir(childDst); err != nil {
			errs = append(errs, err)
			continue
		}

		if err := util.CopyFile(childSrc, childDst); err != nil {
			errs = append(errs, fmt.Errorf("failed to copy %s: %w", childSrc, err))
		}
	}

	return errors.Join(errs...)
}

// DeletePath removes a file or directory at the destination. A path that is
// already gone is not an error.
func (Ops) DeletePath(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.IsDir() {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove dir %s: %w", path, err)
		}
		return nil
	}

	return util.RemoveIfExists(path)
}

func (Ops) RenamePath(oldPath, newPath string) error {
	oldInfo, err := os.Lstat(oldPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceMissing, oldPath)
		}
		return fmt.Errorf("failed to stat %s: %w", oldPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	if newInfo, err := os.Lstat(newPath); err == nil && (newInfo.IsDir() || oldInfo.IsDir()) {
		if err := os.RemoveAll(newPath); err != nil {
			return fmt.Errorf("failed to clear rename target %s: %w", newPath, err)
		}
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}

func removeIfDir(path string) error {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() {
		return nil
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to replace directory with file: %w", err)
	}

	return nil
}
