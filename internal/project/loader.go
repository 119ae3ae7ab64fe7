// Package project reads a project directory into a File Set.
package project

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"

	"github.com/conneroisu/srcdoc/internal/errors"
	"github.com/conneroisu/srcdoc/internal/types"
)

// DefaultIgnore lists names that are never loaded.
var DefaultIgnore = []string{"node_modules", ".git", ".hg", ".svn", "dist", ".env", ".env.*", "*.log", ".DS_Store"}

// DefaultMaxFileSize caps the size of a single loaded file.
const DefaultMaxFileSize = 2 << 20

// Loader loads project files from a filesystem.
type Loader struct {
	fs          afero.Fs
	root        string
	ignore      []string
	MaxFileSize int64
}

// NewLoader creates a loader rooted at root. ignore patterns are matched
// against every path segment with path.Match; DefaultIgnore is always
// applied.
func NewLoader(fs afero.Fs, root string, ignore []string) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	patterns := append(append([]string{}, DefaultIgnore...), ignore...)

	return &Loader{
		fs:          fs,
		root:        filepath.Clean(root),
		ignore:      patterns,
		MaxFileSize: DefaultMaxFileSize,
	}
}

// Root returns the directory being loaded.
func (l *Loader) Root() string {
	return l.root
}

// Ignored reports whether a root-relative path is excluded.
func (l *Loader) Ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, segment := range strings.Split(rel, "/") {
		if segment == "" || segment == "." {
			continue
		}
		for _, pattern := range l.ignore {
			if matched, _ := path.Match(pattern, segment); matched {
				return true
			}
		}
	}

	return false
}

// Relative converts an absolute or root-joined path to a File Set path. The
// boolean is false for paths outside the root.
func (l *Loader) Relative(p string) (string, bool) {
	rel, err := filepath.Rel(l.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	return filepath.ToSlash(rel), true
}

// Load reads every non-ignored text file under the root. Files above the size
// limit and binary files are skipped.
func (l *Loader) Load(ctx context.Context) (types.FileSet, error) {
	info, err := l.fs.Stat(l.root)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "cannot open project "+l.root, err)
	}
	if !info.IsDir() {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidPath, l.root+" is not a directory")
	}

	files := types.FileSet{}
	err = afero.Walk(l.fs, l.root, func(p string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}

		rel, ok := l.Relative(p)
		if !ok || rel == "." {
			return nil
		}
		if l.Ignored(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		if l.MaxFileSize > 0 && info.Size() > l.MaxFileSize {
			return nil
		}

		data, err := afero.ReadFile(l.fs, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		if isBinary(data) {
			return nil
		}
		files[rel] = string(data)

		return nil
	})
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "load project "+l.root, err)
	}

	return files, nil
}

func isBinary(data []byte) bool {
	probe := data
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	for _, b := range probe {
		if b == 0 {
			return true
		}
	}

	return false
}

// Digest is a fast content digest of a File Set, used to skip rebuilds when a
// filesystem event did not change any loaded content.
func Digest(files types.FileSet) uint64 {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	digest := xxhash.New()
	for _, p := range paths {
		_, _ = digest.WriteString(p)
		_, _ = digest.Write([]byte{0})
		_, _ = digest.WriteString(files[p])
		_, _ = digest.Write([]byte{0})
	}

	return digest.Sum64()
}
