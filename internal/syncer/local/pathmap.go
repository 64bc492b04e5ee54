package local

import (
	"path/filepath"
	"strings"
)

// MapPath maps an absolute path under watchRoot to the same relative location
// under destRoot. The watched root itself maps to destRoot.
func MapPath(srcPath, watchRoot, destRoot string) string {
	rest, ok := strings.CutPrefix(srcPath, watchRoot)
	if !ok || (rest != "" && !isSeparator(rest[0]) && !endsWithSeparator(watchRoot)) {
		// not a descendant of watchRoot
		return filepath.Join(destRoot, filepath.Base(srcPath))
	}

	rest = strings.TrimLeft(rest, `/`+string(filepath.Separator))
	return filepath.Join(destRoot, rest)
}

func isSeparator(c byte) bool {
	return c == '/' || c == filepath.Separator
}

func endsWithSeparator(path string) bool {
	return path != "" && isSeparator(path[len(path)-1])
}
