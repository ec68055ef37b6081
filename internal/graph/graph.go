// Package graph provides a dependency graph for task scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ShayCichocki/assetflow/pkg/models"
)

var (
	// ErrCycleDetected indicates a circular dependency was found in the task graph.
	ErrCycleDetected = errors.New("circular dependency detected")
	// ErrUnknownTask indicates a task name that is not registered in the graph.
	ErrUnknownTask = errors.New("unknown task")
)

// CycleError reports the tasks forming a cycle. Path starts and ends with
// the same task name.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// DependencyGraph represents a directed acyclic graph of task dependencies.
// Tasks are nodes keyed by name, and edges represent "runs after" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task name to the task itself.
	nodes map[string]*models.Task
	// edges maps task name to names of tasks it depends on.
	edges map[string][]string
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		debugLog:  func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the dependency graph from a slice of tasks.
// Returns ErrUnknownTask if a dependency is not declared and a *CycleError
// if the dependencies loop.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d tasks", len(tasks))

	// First pass: register all tasks as nodes.
	for _, task := range tasks {
		if _, dup := g.nodes[task.Name]; dup {
			return fmt.Errorf("task %q declared twice", task.Name)
		}
		g.debugLog("[graph.Build] adding task: name=%s depends_on=%v", task.Name, task.DependsOn)
		g.nodes[task.Name] = task
		g.edges[task.Name] = nil
	}

	// Second pass: build edges from DependsOn fields.
	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if _, exists := g.nodes[dep]; !exists {
				return fmt.Errorf("task %q depends on %q: %w", task.Name, dep, ErrUnknownTask)
			}
			g.edges[task.Name] = append(g.edges[task.Name], dep)
		}
	}

	if cycle := g.findCycleLocked(); cycle != nil {
		return &CycleError{Path: cycle}
	}

	g.debugLog("[graph.Build] graph built successfully with %d nodes", len(g.nodes))
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findCycleLocked() != nil
}

// findCycleLocked runs a depth-first search with colouring and returns the
// first cycle found, or nil. Nodes are visited in name order so the reported
// path is stable. Assumes the lock is held.
func (g *DependencyGraph) findCycleLocked() []string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		colors[name] = 1
		stack = append(stack, name)

		for _, dep := range g.edges[name] {
			switch colors[dep] {
			case 1:
				// Back edge: the cycle is the stack suffix starting at dep.
				for i, n := range stack {
					if n == dep {
						cycle := append([]string(nil), stack[i:]...)
						return append(cycle, dep)
					}
				}
			case 0:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[name] = 2
		return nil
	}

	for _, name := range g.sortedNamesLocked() {
		if colors[name] == 0 {
			if cycle := visit(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func (g *DependencyGraph) sortedNamesLocked() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TopologicalSort returns task names in an order where all dependencies
// come before the tasks that depend on them. Ties are broken by name.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if cycle := g.findCycleLocked(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}
	return g.postOrderLocked(g.sortedNamesLocked()), nil
}

// postOrderLocked visits roots and their dependencies depth first and returns
// every reached node after its dependencies.
func (g *DependencyGraph) postOrderLocked(roots []string) []string {
	visited := make(map[string]bool)
	var result []string

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true

		// Visit all dependencies first.
		for _, dep := range g.edges[name] {
			visit(dep)
		}
		result = append(result, name)
	}

	for _, name := range roots {
		visit(name)
	}
	return result
}

// Closure returns the targets and everything they transitively depend on,
// dependencies first. Unknown targets yield ErrUnknownTask.
func (g *DependencyGraph) Closure(targets ...string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, name := range targets {
		if _, ok := g.nodes[name]; !ok {
			return nil, fmt.Errorf("%q: %w", name, ErrUnknownTask)
		}
	}
	return g.postOrderLocked(targets), nil
}

// GetReady returns task names that have no unmet dependencies and have not
// started. These tasks can be executed in parallel. The result is sorted.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for name, task := range g.nodes {
		if g.completed[name] || task.Status != "" && task.Status != models.TaskStatusPending {
			continue
		}

		allDepsComplete := true
		for _, dep := range g.edges[name] {
			if !g.completed[dep] {
				allDepsComplete = false
				break
			}
		}
		if allDepsComplete {
			ready = append(ready, name)
		}
	}

	sort.Strings(ready)
	g.debugLog("[graph.GetReady] returning %d ready tasks: %v", len(ready), ready)
	return ready
}

// MarkComplete marks a task as completed in the graph.
// This affects subsequent calls to GetReady.
func (g *DependencyGraph) MarkComplete(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.MarkComplete] marking task %s as complete", name)
	g.completed[name] = true
}

// IsComplete reports whether name has been marked complete.
func (g *DependencyGraph) IsComplete(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.completed[name]
}

// GetTask returns the task for a given name, or nil if not found.
func (g *DependencyGraph) GetTask(name string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[name]
}

// Tasks returns every task sorted by name.
func (g *DependencyGraph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(g.nodes))
	for _, name := range g.sortedNamesLocked() {
		tasks = append(tasks, g.nodes[name])
	}
	return tasks
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the names of tasks that the given task depends on.
func (g *DependencyGraph) GetDependencies(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[name]...)
}

// GetDependents returns the names of tasks that depend on the given task, sorted.
func (g *DependencyGraph) GetDependents(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for id, deps := range g.edges {
		for _, dep := range deps {
			if dep == name {
				dependents = append(dependents, id)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// GetTransitiveDependents returns every task that directly or indirectly
// depends on name, sorted.
func (g *DependencyGraph) GetTransitiveDependents(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	reverse := make(map[string][]string, len(g.edges))
	for id, deps := range g.edges {
		for _, dep := range deps {
			reverse[dep] = append(reverse[dep], id)
		}
	}

	seen := make(map[string]bool)
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range reverse[cur] {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
