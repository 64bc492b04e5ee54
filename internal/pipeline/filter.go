package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher answers whether an absolute path is excluded by any of a fixed set of
// case-insensitive doublestar patterns.
type Matcher struct {
	patterns []string
}

func NewMatcher(patterns []string) (*Matcher, error) {
	compiled := make([]string, 0, len(patterns))

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		normalized := strings.ToLower(filepath.ToSlash(p))
		if !doublestar.ValidatePattern(normalized) {
			return nil, fmt.Errorf("invalid exclusion pattern %q", p)
		}

		compiled = append(compiled, normalized)
	}

	return &Matcher{patterns: compiled}, nil
}

func (m *Matcher) IsExcluded(path string) bool {
	if m == nil || len(m.patterns) == 0 || path == "" {
		return false
	}

	normalized := strings.ToLower(filepath.ToSlash(path))
	trimmed := strings.TrimPrefix(normalized, "/")

	for _, pattern := range m.patterns {
		if matched, err := doublestar.Match(pattern, normalized); err == nil && matched {
			return true
		}
		// "**/x/**" style patterns are written against relative-looking paths
		if trimmed != normalized {
			if matched, err := doublestar.Match(pattern, trimmed); err == nil && matched {
				return true
			}
		}
	}

	return false
}

func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}
