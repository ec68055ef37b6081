package pipeline

import "context"

// Notifier receives the paths a pipeline wrote so connected browsers can
// pick them up.
type Notifier interface {
	Stream(paths ...string)
}

// Stream hands the root-relative paths of the files it sees to n and passes
// them on unchanged. A nil notifier or an empty file set notifies nobody.
func Stream(n Notifier) Stage {
	return Func("stream", func(_ context.Context, _ *Runtime, files []*File) ([]*File, error) {
		if n != nil && len(files) > 0 {
			n.Stream(Paths(files)...)
		}
		return files, nil
	})
}
