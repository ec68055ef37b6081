package pipeline

import (
	"context"
	"log/slog"

	"github.com/go-git/go-billy/v5"
)

// Runtime is shared by the stages of one pipeline run.
type Runtime struct {
	FS     billy.Filesystem
	Writes *WriteLog
	Logger *slog.Logger
}

// Stage transforms the set of files flowing through a pipeline.
type Stage interface {
	Name() string
	Process(ctx context.Context, rt *Runtime, files []*File) ([]*File, error)
}

type stageFunc struct {
	name string
	fn   func(ctx context.Context, rt *Runtime, files []*File) ([]*File, error)
}

func (s stageFunc) Name() string { return s.name }

func (s stageFunc) Process(ctx context.Context, rt *Runtime, files []*File) ([]*File, error) {
	return s.fn(ctx, rt, files)
}

// Func adapts a function over the whole file set into a Stage.
func Func(name string, fn func(ctx context.Context, rt *Runtime, files []*File) ([]*File, error)) Stage {
	return stageFunc{name: name, fn: fn}
}

// Map returns a Stage applying fn to each file in order. A nil result drops
// the file.
func Map(name string, fn func(ctx context.Context, f *File) (*File, error)) Stage {
	return Func(name, func(ctx context.Context, _ *Runtime, files []*File) ([]*File, error) {
		out := make([]*File, 0, len(files))
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r, err := fn(ctx, f)
			if err != nil {
				return nil, &FileError{Path: f.Path(), Err: err}
			}
			if r != nil {
				out = append(out, r)
			}
		}
		return out, nil
	})
}

// Filter returns a Stage keeping the files for which keep returns true.
func Filter(name string, keep func(f *File) bool) Stage {
	return Map(name, func(_ context.Context, f *File) (*File, error) {
		if keep(f) {
			return f, nil
		}
		return nil, nil
	})
}

// Passthrough returns a Stage that changes nothing.
func Passthrough(name string) Stage {
	return Func(name, func(_ context.Context, _ *Runtime, files []*File) ([]*File, error) {
		return files, nil
	})
}

// When returns stage if cond holds, otherwise a passthrough with the same
// name. Production-only stages are gated this way.
func When(cond bool, stage Stage) Stage {
	if cond {
		return stage
	}
	return Passthrough(stage.Name())
}

// Rename returns a Stage rewriting each file's Rel through fn.
func Rename(fn func(rel string) string) Stage {
	return Map("rename", func(_ context.Context, f *File) (*File, error) {
		c := *f
		c.Rel = fn(f.Rel)
		return &c, nil
	})
}
