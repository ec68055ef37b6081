package transform

import (
	"bytes"
	"context"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/ShayCichocki/assetflow/internal/pipeline"
)

// CompileTypeScript strips type annotations from .ts files and renames them
// to .js. Types are not checked.
func CompileTypeScript() pipeline.Stage {
	return pipeline.Map("typescript", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
		if f.Ext() != ".ts" {
			return f, nil
		}
		result := api.Transform(string(f.Contents), api.TransformOptions{
			Loader:     api.LoaderTS,
			Sourcefile: f.Path(),
			Target:     api.ES2017,
		})
		if len(result.Errors) > 0 {
			return nil, esbuildError(result.Errors)
		}
		out := f.WithExt(".js")
		out.Contents = result.Code
		return out, nil
	})
}

// StripDebug removes console calls and debugger statements. Files without
// either are passed through byte for byte.
func StripDebug() pipeline.Stage {
	return pipeline.Map("strip-debug", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
		opts := api.TransformOptions{Loader: api.LoaderJS, Sourcefile: f.Path()}
		kept := api.Transform(string(f.Contents), opts)
		if len(kept.Errors) > 0 {
			return nil, esbuildError(kept.Errors)
		}

		opts.Drop = api.DropConsole | api.DropDebugger
		stripped := api.Transform(string(f.Contents), opts)
		if len(stripped.Errors) > 0 {
			return nil, esbuildError(stripped.Errors)
		}
		if bytes.Equal(kept.Code, stripped.Code) {
			return f, nil
		}

		out := f.Clone()
		out.Contents = stripped.Code
		return out, nil
	})
}

// MinifyJS minifies scripts, keeping the original when minification would
// not make it smaller.
func MinifyJS() pipeline.Stage {
	return pipeline.Map("uglify", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
		result := api.Transform(string(f.Contents), api.TransformOptions{
			Loader:            api.LoaderJS,
			Sourcefile:        f.Path(),
			MinifyWhitespace:  true,
			MinifyIdentifiers: true,
			MinifySyntax:      true,
		})
		if len(result.Errors) > 0 {
			return nil, esbuildError(result.Errors)
		}
		out := f.Clone()
		out.Contents = smaller(f.Contents, bytes.TrimRight(result.Code, "\n"))
		return out, nil
	})
}
