// Package archive builds zip archives of project files.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/go-git/go-billy/v5"

	"github.com/ShayCichocki/assetflow/internal/pipeline"
)

// ZipEntry represents an entry in a zip archive.
type ZipEntry struct {
	*zip.FileHeader
	Body []byte
}

// WriteTo writes the ZipEntry to a zip writer.
func (e ZipEntry) WriteTo(zw *zip.Writer) error {
	fw, err := zw.CreateHeader(e.FileHeader)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, bytes.NewReader(e.Body)); err != nil {
		return err
	}
	return nil
}

// entryFor builds a deflated entry named by the file's Rel path.
func entryFor(f *pipeline.File) ZipEntry {
	h := &zip.FileHeader{
		Name:     f.Rel,
		Method:   zip.Deflate,
		Modified: f.ModTime,
	}
	mode := f.Mode
	if mode == 0 {
		mode = 0644
	}
	h.SetMode(mode)
	return ZipEntry{FileHeader: h, Body: f.Contents}
}

// Write encodes files as a zip archive into w.
func Write(w io.Writer, files []*pipeline.File) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		if err := entryFor(f).WriteTo(zw); err != nil {
			return fmt.Errorf("adding %s: %w", f.Rel, err)
		}
	}
	return zw.Close()
}

// Zip collects every file into one archive named name. The archive takes
// the place of its inputs in the pipeline; an empty input still produces an
// empty archive.
func Zip(name string) pipeline.Stage {
	return pipeline.Func("zip", func(_ context.Context, _ *pipeline.Runtime, files []*pipeline.File) ([]*pipeline.File, error) {
		var buf bytes.Buffer
		if err := Write(&buf, files); err != nil {
			return nil, err
		}
		out := &pipeline.File{Base: ".", Rel: name, Contents: buf.Bytes(), Mode: 0644}
		for _, f := range files {
			if f.ModTime.After(out.ModTime) {
				out.ModTime = f.ModTime
			}
		}
		return []*pipeline.File{out}, nil
	})
}

// Entries returns the sorted entry names of the zip archive at name in fsys.
func Entries(fsys billy.Filesystem, name string) ([]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	names := make([]string, 0, len(zr.File))
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	sort.Strings(names)
	return names, nil
}
