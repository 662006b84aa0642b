package logtail

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/opsdeck/appman/internal/shared/apperr"
)

// ResolvePath turns a configured log path into a concrete file. Literal
// paths pass through untouched. Glob patterns (including **) resolve to the
// most recently modified match, so rotated logs like backend-*.log always
// land on the current file. No match fails with ErrLogNotFound.
func ResolvePath(pattern string) (string, error) {
	if !hasMeta(pattern) {
		return pattern, nil
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return "", fmt.Errorf("bad log pattern %q: %w", pattern, err)
	}

	var newest string
	var newestMod int64
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest = match
			newestMod = mod
		}
	}
	if newest == "" {
		return "", fmt.Errorf("%w: no file matches %q", apperr.ErrLogNotFound, pattern)
	}
	return newest, nil
}

func hasMeta(path string) bool {
	for _, c := range path {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
