// Package pipeline implements linear file pipelines: glob sources resolved
// once, a chain of stages, and destination writes.
package pipeline

import (
	"os"
	"path"
	"strings"
	"time"
)

// File is one file travelling through a pipeline. Paths are slash-separated
// and relative to the project root.
type File struct {
	// Base is the directory the file was matched from (the static prefix of
	// its glob), or the destination directory once written.
	Base string
	// Rel is the path below Base. Destinations preserve it.
	Rel      string
	Contents []byte
	ModTime  time.Time
	Mode     os.FileMode
}

// Path returns the file's path relative to the project root.
func (f *File) Path() string {
	return path.Join(f.Base, f.Rel)
}

// Ext returns the lower-cased extension of the file, including the dot.
func (f *File) Ext() string {
	return strings.ToLower(path.Ext(f.Rel))
}

// Clone returns a copy with its own contents buffer.
func (f *File) Clone() *File {
	c := *f
	c.Contents = append([]byte(nil), f.Contents...)
	return &c
}

// WithExt returns a copy of f whose Rel has its extension replaced by ext.
func (f *File) WithExt(ext string) *File {
	c := *f
	c.Rel = strings.TrimSuffix(f.Rel, path.Ext(f.Rel)) + ext
	return &c
}

// Paths returns the root-relative paths of files.
func Paths(files []*File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path()
	}
	return out
}

// TotalSize returns the combined length of the files' contents.
func TotalSize(files []*File) int {
	n := 0
	for _, f := range files {
		n += len(f.Contents)
	}
	return n
}
