package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Resolve expands glob patterns against fsys and reads the matching files.
// Patterns prefixed with "!" exclude matches. Files are returned in pattern
// order, lexically sorted within each pattern, without duplicates. Patterns
// that match nothing contribute no files and are not an error.
func Resolve(fsys billy.Filesystem, patterns ...string) ([]*File, error) {
	var includes, excludes []string
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			excludes = append(excludes, cleanPattern(p[1:]))
		} else {
			includes = append(includes, cleanPattern(p))
		}
	}
	for _, p := range append(append([]string(nil), includes...), excludes...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob %q", p)
		}
	}

	seen := make(map[string]bool)
	var files []*File
	for _, pattern := range includes {
		base, _ := doublestar.SplitPattern(pattern)
		matches, err := match(fsys, base, pattern, excludes)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", pattern, err)
		}
		sort.Strings(matches)

		for _, p := range matches {
			if seen[p] {
				continue
			}
			seen[p] = true

			f, err := readFile(fsys, base, p)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}
	return files, nil
}

// Excluded reports whether p matches any of the exclude patterns.
func Excluded(p string, excludes []string) bool {
	for _, ex := range excludes {
		if ok, _ := doublestar.Match(ex, p); ok {
			return true
		}
	}
	return false
}

func cleanPattern(p string) string {
	p = strings.TrimPrefix(filepath.ToSlash(p), "./")
	if p == "" {
		return "."
	}
	return p
}

// match walks base and returns the regular files matching pattern.
func match(fsys billy.Filesystem, base, pattern string, excludes []string) ([]string, error) {
	if !hasMeta(pattern) {
		info, err := fsys.Stat(pattern)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() || Excluded(pattern, excludes) {
			return nil, nil
		}
		return []string{pattern}, nil
	}

	if _, err := fsys.Stat(base); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	var matches []string
	err := util.Walk(fsys, base, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		p = filepath.ToSlash(p)
		if info.IsDir() {
			if p != base && Excluded(p, excludes) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if ok, _ := doublestar.Match(pattern, p); !ok || Excluded(p, excludes) {
			return nil
		}
		matches = append(matches, p)
		return nil
	})
	return matches, err
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{\\")
}

func readFile(fsys billy.Filesystem, base, p string) (*File, error) {
	info, err := fsys.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	data, err := util.ReadFile(fsys, p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}

	rel := p
	if base != "." {
		rel = strings.TrimPrefix(p, base+"/")
	}
	return &File{
		Base:     base,
		Rel:      rel,
		Contents: data,
		ModTime:  info.ModTime(),
		Mode:     info.Mode().Perm(),
	}, nil
}
