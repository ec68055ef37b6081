package tasks

import (
	"context"
	"fmt"
	"path"

	"github.com/go-git/go-billy/v5/util"

	"github.com/ShayCichocki/assetflow/internal/archive"
	"github.com/ShayCichocki/assetflow/internal/logging"
	"github.com/ShayCichocki/assetflow/internal/pipeline"
	"github.com/ShayCichocki/assetflow/internal/transform"
)

// builtins returns the catalog of asset tasks.
func (c *Catalog) builtins() []Definition {
	return []Definition{
		{Name: "default", Description: "Start the server, relay and watchers", Deps: []string{"watch"}},
		{Name: "watch", Description: "Re-run asset tasks when sources change", Deps: []string{"browser-sync"}, Action: c.watch, Service: true},
		{Name: "browser-sync", Description: "Start the live-reload relay", Deps: []string{"nodemon"}, Action: c.browserSync, Service: true},
		{Name: "nodemon", Description: "Start and supervise the development server", Action: c.nodemon, Service: true},

		{Name: "build", Description: "Build every asset", Deps: []string{"copy", "images", "styles", "scripts"}},
		{
			Name:        "build:dist",
			Description: "Copy sources and build bundles into the distribution root",
			Deps:        []string{"copy:src:root", "copy:src:css", "copy:src:images", "copy:src:js", "css", "js", "images"},
		},
		{Name: "clean", Description: "Remove the distribution root", Action: c.clean},
		{Name: "copy", Description: "Copy top-level source files", Action: c.pipelineAction(c.copyRoot("copy"))},
		{Name: "images", Description: "Optimize changed images", Action: c.pipelineAction(c.images)},

		{Name: "scripts", Description: "Build scripts", Deps: []string{"scripts:js"}},
		{Name: "scripts:js", Description: "Concatenate vendor and project scripts", Deps: []string{"scripts:ts"}, Action: c.pipelineAction(c.scriptsJS)},
		{Name: "scripts:ts", Description: "Compile TypeScript into the source scripts", Action: c.pipelineAction(c.scriptsTS)},
		{Name: "styles", Description: "Build styles", Deps: []string{"styles:css"}},
		{Name: "styles:css", Description: "Concatenate vendor and project styles", Deps: []string{"styles:scss"}, Action: c.pipelineAction(c.stylesCSS)},
		{Name: "styles:scss", Description: "Compile SCSS into the source styles", Action: c.pipelineAction(c.stylesSCSS)},

		{Name: "js", Description: "Bundle project scripts in dependency order", Action: c.pipelineAction(c.js)},
		{Name: "css", Description: "Bundle project styles with packed media queries", Action: c.pipelineAction(c.css)},
		{Name: "favicon", Description: "Copy the favicon", Action: c.pipelineAction(c.favicon)},
		{Name: "copy:src:root", Description: "Copy top-level source files", Action: c.pipelineAction(c.copyRoot("copy:src:root"))},
		{Name: "copy:src:css", Description: "Copy source styles", Action: c.pipelineAction(c.copyDir("copy:src:css", c.cfg.Paths.SrcStyles(), c.cfg.Paths.DistStyles()))},
		{Name: "copy:src:images", Description: "Copy source images", Action: c.pipelineAction(c.copyDir("copy:src:images", c.cfg.Paths.SrcImages(), c.cfg.Paths.DistImages()))},
		{Name: "copy:src:js", Description: "Copy source scripts", Action: c.pipelineAction(c.copyDir("copy:src:js", c.cfg.Paths.SrcScripts(), c.cfg.Paths.DistScripts()))},
		{Name: "js-smash", Description: "Bundle vendor scripts", Action: c.pipelineAction(c.jsSmash)},
		{Name: "css-smash", Description: "Bundle vendor styles", Action: c.pipelineAction(c.cssSmash)},
		{Name: "archive", Description: "Zip the project", Action: c.pipelineAction(c.archive)},
	}
}

// pipelineAction builds the pipeline when the task runs, so streams reach
// a relay started earlier in the same session.
func (c *Catalog) pipelineAction(build func() *pipeline.Pipeline) func(context.Context) error {
	return func(ctx context.Context) error {
		return c.run(ctx, build())
	}
}

func (c *Catalog) production() bool {
	return c.cfg.Env.IsProduction()
}

func (c *Catalog) clean(ctx context.Context) error {
	dist := c.cfg.Paths.Dist()
	if err := util.RemoveAll(c.fs, dist); err != nil {
		return fmt.Errorf("removing %s: %w", dist, err)
	}
	logging.FromContext(ctx).Info("removed distribution root", "path", dist)
	return nil
}

func (c *Catalog) copyRoot(name string) func() *pipeline.Pipeline {
	return func() *pipeline.Pipeline {
		return pipeline.New(name, path.Join(c.cfg.Paths.SrcRoot(), "*.*")).
			Pipe(pipeline.Dest(c.cfg.Paths.Dist()))
	}
}

func (c *Catalog) copyDir(name, from, to string) func() *pipeline.Pipeline {
	return func() *pipeline.Pipeline {
		return pipeline.New(name, path.Join(from, "**/*")).
			Pipe(pipeline.Dest(to))
	}
}

func (c *Catalog) images() *pipeline.Pipeline {
	p := c.cfg.Paths
	return pipeline.New("images", path.Join(p.SrcImages(), "**/*")).Pipe(
		pipeline.Newer(p.DistImages()),
		transform.OptimizeImages(transform.ImageOptions{
			Level:       c.cfg.Images.OptimizationLevel,
			JPEGQuality: c.cfg.Images.JPEGQuality,
		}),
		pipeline.Dest(p.DistImages()),
		c.stream(),
	)
}

func (c *Catalog) scriptsJS() *pipeline.Pipeline {
	p, f := c.cfg.Paths, c.cfg.Files
	sources := append(append([]string(nil), f.VendorScripts...), path.Join(p.SrcScripts(), "**/*.js"))
	return pipeline.New("scripts:js", sources...).Pipe(
		pipeline.When(c.production(), transform.StripDebug()),
		pipeline.When(c.production(), transform.MinifyJS()),
		pipeline.Concat(f.ScriptsOut, f.ConcatSeparator),
		pipeline.Dest(p.DistScripts()),
		c.stream(),
	)
}

func (c *Catalog) scriptsTS() *pipeline.Pipeline {
	p := c.cfg.Paths
	return pipeline.New("scripts:ts", path.Join(p.SrcScripts(), "**/*.ts")).Pipe(
		transform.CompileTypeScript(),
		pipeline.Concat(c.cfg.Files.TSOut, c.cfg.Files.ConcatSeparator),
		pipeline.Dest(p.SrcScripts()),
	)
}

func (c *Catalog) stylesCSS() *pipeline.Pipeline {
	p, f := c.cfg.Paths, c.cfg.Files
	sources := append(append([]string(nil), f.VendorStyles...), path.Join(p.SrcStyles(), "**/*.css"))
	return pipeline.New("styles:css", sources...).Pipe(
		pipeline.When(c.production(), transform.MinifyCSS()),
		pipeline.Concat(f.StylesOut, f.ConcatSeparator),
		pipeline.Dest(p.DistStyles()),
		c.stream(),
	)
}

func (c *Catalog) stylesSCSS() *pipeline.Pipeline {
	p := c.cfg.Paths
	return pipeline.New("styles:scss", path.Join(p.SrcStyles(), "**/*.scss")).Pipe(
		transform.CompileSCSS(c.cmd, transform.SassOptions{
			Binary: c.cfg.Tools.Sass,
			Style:  c.cfg.Styles.SassOutputStyle,
			Root:   c.cfg.Root,
		}),
		transform.Autoprefix(c.cfg.Styles.Browsers),
		pipeline.Dest(p.SrcStyles()),
	)
}

func (c *Catalog) js() *pipeline.Pipeline {
	p, f := c.cfg.Paths, c.cfg.Files
	return pipeline.New("js", path.Join(p.SrcScripts(), "**/*.js")).Pipe(
		pipeline.DepOrder(),
		pipeline.Concat(f.MainScript, f.ConcatSeparator),
		pipeline.When(c.production(), transform.StripDebug()),
		pipeline.When(c.production(), transform.MinifyJS()),
		pipeline.Dest(p.DistScripts()),
		c.stream(),
	)
}

func (c *Catalog) css() *pipeline.Pipeline {
	p, f := c.cfg.Paths, c.cfg.Files
	return pipeline.New("css", path.Join(p.SrcStyles(), "**/*.css")).Pipe(
		pipeline.Concat(f.MainStyle, f.ConcatSeparator),
		transform.Autoprefix(c.cfg.Styles.Browsers),
		transform.PackMediaQueries(),
		pipeline.When(c.production(), transform.MinifyCSS()),
		pipeline.Dest(p.DistStyles()),
		c.stream(),
	)
}

func (c *Catalog) favicon() *pipeline.Pipeline {
	p := c.cfg.Paths
	return pipeline.New("favicon", path.Join(p.SrcRoot(), c.cfg.Files.Favicon)).
		Pipe(pipeline.Dest(p.Dist()))
}

func (c *Catalog) jsSmash() *pipeline.Pipeline {
	f := c.cfg.Files
	return pipeline.New("js-smash", f.VendorScripts...).Pipe(
		pipeline.When(c.production(), transform.MinifyJS()),
		pipeline.Concat(f.VendorScript, f.ConcatSeparator),
		pipeline.Dest(c.cfg.Paths.DistScripts()),
	)
}

func (c *Catalog) cssSmash() *pipeline.Pipeline {
	f := c.cfg.Files
	return pipeline.New("css-smash", f.VendorStyles...).Pipe(
		pipeline.When(c.production(), transform.MinifyCSS()),
		pipeline.Concat(f.VendorStyle, f.ConcatSeparator),
		pipeline.Dest(c.cfg.Paths.DistStyles()),
	)
}

func (c *Catalog) archive() *pipeline.Pipeline {
	sources := []string{"**/*.*", "!" + c.cfg.Files.Archive}
	for _, ex := range c.cfg.Archive.Exclude {
		sources = append(sources, "!"+ex)
	}
	return pipeline.New("archive", sources...).Pipe(
		archive.Zip(c.cfg.Files.Archive),
		pipeline.Dest("."),
	)
}
