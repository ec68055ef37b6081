package graph

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ShayCichocki/assetflow/pkg/models"
)

func buildGraph(t *testing.T, tasks ...*models.Task) *DependencyGraph {
	t.Helper()
	g := New()
	if err := g.Build(tasks); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestNew(t *testing.T) {
	g := New()
	if g.Size() != 0 {
		t.Errorf("expected empty graph, got size %d", g.Size())
	}
}

func TestBuildWithDependencies(t *testing.T) {
	g := buildGraph(t,
		&models.Task{Name: "copy"},
		&models.Task{Name: "styles", DependsOn: []string{"copy"}},
		&models.Task{Name: "build", DependsOn: []string{"copy", "styles"}},
	)

	if g.Size() != 3 {
		t.Errorf("expected size 3, got %d", g.Size())
	}
	if diff := cmp.Diff([]string{"copy", "styles"}, g.GetDependencies("build")); diff != "" {
		t.Errorf("GetDependencies mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"build", "styles"}, g.GetDependents("copy")); diff != "" {
		t.Errorf("GetDependents mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildUnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{{Name: "build", DependsOn: []string{"nope"}}})
	if !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

func TestBuildDuplicateTask(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{{Name: "a"}, {Name: "a"}}); err == nil {
		t.Fatal("expected error for duplicate task")
	}
}

func TestCycleDetection(t *testing.T) {
	tests := []struct {
		name     string
		tasks    []*models.Task
		wantPath []string
	}{
		{
			name: "direct",
			tasks: []*models.Task{
				{Name: "A", DependsOn: []string{"B"}},
				{Name: "B", DependsOn: []string{"A"}},
			},
			wantPath: []string{"A", "B", "A"},
		},
		{
			name: "three nodes",
			tasks: []*models.Task{
				{Name: "A", DependsOn: []string{"B"}},
				{Name: "B", DependsOn: []string{"C"}},
				{Name: "C", DependsOn: []string{"A"}},
			},
			wantPath: []string{"A", "B", "C", "A"},
		},
		{
			name:     "self loop",
			tasks:    []*models.Task{{Name: "A", DependsOn: []string{"A"}}},
			wantPath: []string{"A", "A"},
		},
		{
			name: "cycle off a tail",
			tasks: []*models.Task{
				{Name: "a", DependsOn: []string{"x"}},
				{Name: "x", DependsOn: []string{"y"}},
				{Name: "y", DependsOn: []string{"x"}},
			},
			wantPath: []string{"x", "y", "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Build(tt.tasks)
			if !errors.Is(err, ErrCycleDetected) {
				t.Fatalf("expected ErrCycleDetected, got %v", err)
			}
			var cycleErr *CycleError
			if !errors.As(err, &cycleErr) {
				t.Fatalf("expected *CycleError, got %T", err)
			}
			if diff := cmp.Diff(tt.wantPath, cycleErr.Path); diff != "" {
				t.Errorf("cycle path mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTopologicalSort(t *testing.T) {
	g := buildGraph(t,
		&models.Task{Name: "build", DependsOn: []string{"styles", "scripts"}},
		&models.Task{Name: "scripts", DependsOn: []string{"scripts:ts"}},
		&models.Task{Name: "scripts:ts"},
		&models.Task{Name: "styles"},
	)

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}

	want := []string{"styles", "scripts:ts", "scripts", "build"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestClosure(t *testing.T) {
	g := buildGraph(t,
		&models.Task{Name: "default", DependsOn: []string{"watch"}},
		&models.Task{Name: "watch", DependsOn: []string{"browser-sync"}},
		&models.Task{Name: "browser-sync", DependsOn: []string{"nodemon"}},
		&models.Task{Name: "nodemon"},
		&models.Task{Name: "archive"},
	)

	got, err := g.Closure("watch")
	if err != nil {
		t.Fatalf("Closure: %v", err)
	}
	if diff := cmp.Diff([]string{"nodemon", "browser-sync", "watch"}, got); diff != "" {
		t.Errorf("closure mismatch (-want +got):\n%s", diff)
	}

	if _, err := g.Closure("deploy"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("expected ErrUnknownTask, got %v", err)
	}
}

func TestGetReadyAndMarkComplete(t *testing.T) {
	g := buildGraph(t,
		&models.Task{Name: "styles:scss"},
		&models.Task{Name: "styles:css", DependsOn: []string{"styles:scss"}},
		&models.Task{Name: "images"},
	)

	if diff := cmp.Diff([]string{"images", "styles:scss"}, g.GetReady()); diff != "" {
		t.Errorf("initial ready mismatch (-want +got):\n%s", diff)
	}

	g.GetTask("images").Status = models.TaskStatusRunning
	g.MarkComplete("styles:scss")
	g.GetTask("styles:scss").Status = models.TaskStatusDone

	if diff := cmp.Diff([]string{"styles:css"}, g.GetReady()); diff != "" {
		t.Errorf("ready after completion mismatch (-want +got):\n%s", diff)
	}
	if !g.IsComplete("styles:scss") || g.IsComplete("styles:css") {
		t.Error("IsComplete reports wrong state")
	}
}

func TestGetTransitiveDependents(t *testing.T) {
	g := buildGraph(t,
		&models.Task{Name: "nodemon"},
		&models.Task{Name: "browser-sync", DependsOn: []string{"nodemon"}},
		&models.Task{Name: "watch", DependsOn: []string{"browser-sync"}},
		&models.Task{Name: "default", DependsOn: []string{"watch"}},
		&models.Task{Name: "clean"},
	)

	want := []string{"browser-sync", "default", "watch"}
	if diff := cmp.Diff(want, g.GetTransitiveDependents("nodemon")); diff != "" {
		t.Errorf("dependents mismatch (-want +got):\n%s", diff)
	}
	if got := g.GetTransitiveDependents("clean"); len(got) != 0 {
		t.Errorf("expected no dependents of clean, got %v", got)
	}
}

func TestTasksSorted(t *testing.T) {
	g := buildGraph(t, &models.Task{Name: "b"}, &models.Task{Name: "a"})
	var names []string
	for _, task := range g.Tasks() {
		names = append(names, task.Name)
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Errorf("Tasks mismatch (-want +got):\n%s", diff)
	}
}
