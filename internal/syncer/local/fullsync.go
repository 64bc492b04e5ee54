package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mimic/internal/model"
	"mimic/internal/pipeline"
	"mimic/internal/syncer"
)

// FullSync copies every non-excluded file under the watch root onto the
// destination. It never deletes: entries only present at the destination are
// left alone.
func FullSync(spec model.WatchSpec, mirror syncer.Mirror) ([]model.MirrorResult, error) {
	matcher, err := pipeline.NewMatcher(spec.Exclusions)
	if err != nil {
		return nil, err
	}

	var results []model.MirrorResult

	err = filepath.WalkDir(spec.WatchRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == spec.WatchRoot {
				return fmt.Errorf("failed to read watch root: %w", err)
			}
			results = append(results, model.MirrorResult{
				Event:   model.FileEvent{Kind: model.EventCreated, Path: path},
				Op:      model.OpCopy,
				SrcPath: path,
				Err:     err,
			})
			return nil
		}

		if path != spec.WatchRoot && matcher.IsExcluded(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		dstPath := MapPath(path, spec.WatchRoot, spec.DestRoot)

		if d.IsDir() {
			return os.MkdirAll(dstPath, 0755)
		}

		result := model.MirrorResult{
			Event:   model.FileEvent{Kind: model.EventCreated, Path: path},
			Op:      model.OpCopy,
			SrcPath: path,
			DstPath: dstPath,
		}
		result.Err = mirror.CopyRecursiveOverwrite(path, dstPath)
		if errors.Is(result.Err, ErrSourceMissing) {
			result = skipped(result, "source missing")
		}

		results = append(results, result)
		return nil
	})

	return results, err
}
