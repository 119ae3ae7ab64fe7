// Package types provides the shared value types passed between the preset,
// build, and preview packages.
package types

import (
	"path"
	"sort"
	"strings"
)

// FileSet maps a project path to the full text of that file. Insertion order
// carries no meaning.
type FileSet map[string]string

// IsBlank reports whether the set holds no files, or only files whose content
// is empty or whitespace. Blank sets are never built.
func (fs FileSet) IsBlank() bool {
	for _, content := range fs {
		if strings.TrimSpace(content) != "" {
			return false
		}
	}

	return true
}

// Clone returns a copy that shares no storage with fs.
func (fs FileSet) Clone() FileSet {
	if fs == nil {
		return nil
	}

	clone := make(FileSet, len(fs))
	for p, content := range fs {
		clone[p] = content
	}

	return clone
}

// Paths returns the raw keys in sorted order.
func (fs FileSet) Paths() []string {
	paths := make([]string, 0, len(fs))
	for p := range fs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return paths
}

// Index returns the files keyed by their cleaned path. When two raw keys clean
// to the same path the one that sorts first wins, so the result is stable.
func (fs FileSet) Index() map[string]string {
	index := make(map[string]string, len(fs))
	for _, raw := range fs.Paths() {
		clean := CleanPath(raw)
		if _, exists := index[clean]; exists {
			continue
		}
		index[clean] = fs[raw]
	}

	return index
}

// CleanPath normalises a project path for lookups: slashes only, no leading
// "/" or "./", no ".." escaping the project root.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)

	return strings.TrimPrefix(p, "/")
}

// Ext returns the lowercased extension of p including the dot.
func Ext(p string) string {
	return strings.ToLower(path.Ext(p))
}
