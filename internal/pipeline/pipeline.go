package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/ShayCichocki/assetflow/internal/logging"
)

// Pipeline reads the files matching its sources and passes them through its
// stages in order. Sources are resolved once when Run starts.
type Pipeline struct {
	name    string
	sources []string
	stages  []Stage
}

// New creates a pipeline reading the given glob patterns.
func New(name string, sources ...string) *Pipeline {
	return &Pipeline{name: name, sources: sources}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Pipe appends stages and returns the pipeline.
func (p *Pipeline) Pipe(stages ...Stage) *Pipeline {
	p.stages = append(p.stages, stages...)
	return p
}

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run resolves the sources against fsys and runs every stage. It returns the
// files leaving the last stage.
func (p *Pipeline) Run(ctx context.Context, fsys billy.Filesystem, writes *WriteLog, logger *slog.Logger) ([]*File, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("pipeline", p.name)

	files, err := Resolve(fsys, p.sources...)
	if err != nil {
		return nil, &StageError{Pipeline: p.name, Stage: "src", Err: err}
	}
	logger.Debug("sources resolved", "files", len(files))

	rt := &Runtime{FS: fsys, Writes: writes, Logger: logger}
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		files, err = stage.Process(ctx, rt, files)
		if err != nil {
			return nil, &StageError{Pipeline: p.name, Stage: stage.Name(), Err: err}
		}
		logger.Debug("stage finished", "stage", stage.Name(), "files", len(files), "duration", time.Since(start))
	}
	return files, nil
}
