package pipeline

import (
	"bytes"
	"context"
)

// Concat joins all files, in order, into a single file named name placed
// under the first file's base. No input produces no output.
func Concat(name, separator string) Stage {
	return Func("concat", func(_ context.Context, _ *Runtime, files []*File) ([]*File, error) {
		if len(files) == 0 {
			return nil, nil
		}

		var buf bytes.Buffer
		out := &File{Base: files[0].Base, Rel: name, Mode: files[0].Mode}
		for i, f := range files {
			if i > 0 {
				buf.WriteString(separator)
			}
			buf.Write(f.Contents)
			if f.ModTime.After(out.ModTime) {
				out.ModTime = f.ModTime
			}
		}
		out.Contents = buf.Bytes()
		return []*File{out}, nil
	})
}
