package transform

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/ShayCichocki/assetflow/internal/exec"
	"github.com/ShayCichocki/assetflow/internal/pipeline"
)

// MinifyCSS minifies stylesheets, keeping the original when minification
// would not make it smaller.
func MinifyCSS() pipeline.Stage {
	m := newMinifier()
	return pipeline.Map("cssnano", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
		minified, err := m.Bytes(mimeCSS, f.Contents)
		if err != nil {
			return nil, err
		}
		out := f.Clone()
		out.Contents = smaller(f.Contents, minified)
		return out, nil
	})
}

// Autoprefix adds the vendor prefixes the target browsers need.
func Autoprefix(browsers []string) pipeline.Stage {
	return pipeline.Func("autoprefixer", func(ctx context.Context, _ *pipeline.Runtime, files []*pipeline.File) ([]*pipeline.File, error) {
		engines, err := ParseEngines(browsers)
		if err != nil {
			return nil, err
		}
		prefix := pipeline.Map("autoprefixer", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
			result := api.Transform(string(f.Contents), api.TransformOptions{
				Loader:     api.LoaderCSS,
				Sourcefile: f.Path(),
				Engines:    engines,
			})
			if len(result.Errors) > 0 {
				return nil, esbuildError(result.Errors)
			}
			out := f.Clone()
			out.Contents = result.Code
			return out, nil
		})
		return prefix.Process(ctx, nil, files)
	})
}

// SassOptions configures the sass compiler stage.
type SassOptions struct {
	// Binary is the sass executable.
	Binary string
	// Style is the sass output style, e.g. "expanded".
	Style string
	// Root is the absolute project root the compiler runs in.
	Root string
}

// CompileSCSS compiles .scss files with the sass command line compiler and
// renames them to .css. Partials (files starting with "_") are dropped; they
// are only reachable through imports.
func CompileSCSS(runner exec.CommandRunner, opts SassOptions) pipeline.Stage {
	var (
		lookup    sync.Once
		lookupErr error
	)
	return pipeline.Map("sass", func(ctx context.Context, f *pipeline.File) (*pipeline.File, error) {
		if f.Ext() != ".scss" {
			return f, nil
		}
		if path.Base(f.Rel)[0] == '_' {
			return nil, nil
		}
		lookup.Do(func() {
			if _, err := runner.LookPath(opts.Binary); err != nil {
				lookupErr = fmt.Errorf("sass compiler %q not installed: %w", opts.Binary, err)
			}
		})
		if lookupErr != nil {
			return nil, lookupErr
		}
		args := []string{
			"--stdin",
			"--no-source-map",
			fmt.Sprintf("--style=%s", opts.Style),
			fmt.Sprintf("--load-path=%s", filepath.FromSlash(path.Dir(f.Path()))),
		}
		compiled, err := runner.RunInput(ctx, opts.Root, bytes.NewReader(f.Contents), opts.Binary, args...)
		if err != nil {
			return nil, err
		}
		out := f.WithExt(".css")
		out.Contents = compiled
		return out, nil
	})
}
