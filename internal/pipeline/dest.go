package pipeline

import (
	"context"
	"fmt"
	"path"

	"github.com/go-git/go-billy/v5/util"
)

// Dest writes every file to dir, preserving its Rel path, and passes the
// written files on with Base set to dir. Existing files are overwritten.
func Dest(dir string) Stage {
	dir = path.Clean(dir)
	return Func("dest", func(ctx context.Context, rt *Runtime, files []*File) ([]*File, error) {
		out := make([]*File, 0, len(files))
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			target := path.Join(dir, f.Rel)
			if err := rt.FS.MkdirAll(path.Dir(target), 0755); err != nil {
				return nil, fmt.Errorf("creating %s: %w", path.Dir(target), err)
			}
			mode := f.Mode
			if mode == 0 {
				mode = 0644
			}
			if err := util.WriteFile(rt.FS, target, f.Contents, mode); err != nil {
				return nil, fmt.Errorf("writing %s: %w", target, err)
			}
			rt.Writes.Record(target)

			c := *f
			c.Base = dir
			out = append(out, &c)
		}
		rt.Logger.Debug("files written", "dir", dir, "count", len(out))
		return out, nil
	})
}
