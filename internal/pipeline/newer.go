package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
)

// Newer drops files whose counterpart under destDir is at least as recent as
// the source, so unchanged inputs are not reprocessed.
func Newer(destDir string) Stage {
	return Func("newer", func(ctx context.Context, rt *Runtime, files []*File) ([]*File, error) {
		out := make([]*File, 0, len(files))
		for _, f := range files {
			info, err := rt.FS.Stat(path.Join(destDir, f.Rel))
			switch {
			case errors.Is(err, os.ErrNotExist):
				out = append(out, f)
			case err != nil:
				return nil, fmt.Errorf("stat destination of %s: %w", f.Path(), err)
			case f.ModTime.After(info.ModTime()):
				out = append(out, f)
			default:
				rt.Logger.Debug("destination up to date", "file", f.Path())
			}
		}
		return out, nil
	})
}
