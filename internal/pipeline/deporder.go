package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/ShayCichocki/assetflow/internal/graph"
	"github.com/ShayCichocki/assetflow/pkg/models"
)

// requiresRe matches "// requires: a.js, b.js" and "/* requires: a.js */".
var requiresRe = regexp.MustCompile(`^\s*(?://|/\*)\s*requires:\s*(.+?)\s*(?:\*/)?\s*$`)

// DepOrder reorders script files so that every file follows the files it
// names in a "requires:" comment. Requirements are resolved relative to the
// requiring file; ones that name no file in the set are ignored. Files
// without requirements keep their resolution order.
func DepOrder() Stage {
	return Func("deporder", func(_ context.Context, rt *Runtime, files []*File) ([]*File, error) {
		byPath := make(map[string]*File, len(files))
		for _, f := range files {
			byPath[f.Path()] = f
		}

		tasks := make([]*models.Task, 0, len(files))
		names := make([]string, 0, len(files))
		for _, f := range files {
			task := &models.Task{Name: f.Path()}
			for _, req := range parseRequires(f.Contents) {
				dep := path.Join(path.Dir(f.Path()), req)
				if _, ok := byPath[dep]; !ok {
					rt.Logger.Warn("required file not in pipeline", "file", f.Path(), "requires", req)
					continue
				}
				task.DependsOn = append(task.DependsOn, dep)
			}
			tasks = append(tasks, task)
			names = append(names, f.Path())
		}

		g := graph.New()
		if err := g.Build(tasks); err != nil {
			return nil, fmt.Errorf("ordering scripts: %w", err)
		}
		order, err := g.Closure(names...)
		if err != nil {
			return nil, err
		}

		out := make([]*File, len(order))
		for i, p := range order {
			out[i] = byPath[p]
		}
		return out, nil
	})
}

// parseRequires scans the leading comment lines of a script.
func parseRequires(src []byte) []string {
	var reqs []string
	sc := bufio.NewScanner(bytes.NewReader(src))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "//") && !strings.HasPrefix(line, "/*") && !strings.HasPrefix(line, "*") {
			break
		}
		m := requiresRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		for _, r := range strings.Split(m[1], ",") {
			if r = strings.TrimSpace(r); r != "" {
				reqs = append(reqs, r)
			}
		}
	}
	return reqs
}
