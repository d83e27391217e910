package core

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileMatches reports whether a stored related-file entry refers to path.
// Entries may be exact paths, doublestar globs or path suffixes.
func FileMatches(entry, path string) bool {
	if entry == "" || path == "" {
		return false
	}
	entry = filepath.ToSlash(entry)
	path = filepath.ToSlash(path)
	if entry == path {
		return true
	}
	if strings.ContainsAny(entry, "*?[{") {
		if ok, err := doublestar.Match(entry, path); err == nil && ok {
			return true
		}
		return false
	}
	return strings.HasSuffix(path, "/"+entry) || strings.HasSuffix(entry, "/"+path)
}

// TouchesFile reports whether any entry of files refers to path.
func TouchesFile(files []string, path string) bool {
	for _, f := range files {
		if FileMatches(f, path) {
			return true
		}
	}
	return false
}
