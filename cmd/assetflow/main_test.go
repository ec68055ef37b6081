package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/assetflow/internal/runner"
	"github.com/ShayCichocki/assetflow/pkg/models"
)

func init() {
	color.NoColor = true
}

// newTestProject creates a project root with a config file and isolates the
// user config.
func newTestProject(t *testing.T, projectConfig string) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NODE_ENV", "")
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".assetflow.yaml"), []byte(projectConfig), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestList_YAML(t *testing.T) {
	root := newTestProject(t, `
tasks:
  - name: lint
    run: echo lint
    deps: [scripts]
`)

	out, err := execute(t, "list", "--root", root, "--format", "yaml")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var listed []models.Task
	if err := yaml.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}

	byName := make(map[string]models.Task, len(listed))
	for _, task := range listed {
		byName[task.Name] = task
	}
	if diff := cmp.Diff([]string{"scripts"}, byName["lint"].DependsOn); diff != "" {
		t.Errorf("lint deps mismatch (-want +got):\n%s", diff)
	}
	if !byName["nodemon"].LongRunning {
		t.Error("nodemon should be listed as long-running")
	}
	if diff := cmp.Diff([]string{"scripts:ts"}, byName["scripts:js"].DependsOn); diff != "" {
		t.Errorf("scripts:js deps mismatch (-want +got):\n%s", diff)
	}
}

func TestList_UnknownFormat(t *testing.T) {
	root := newTestProject(t, "")
	if _, err := execute(t, "list", "--root", root, "--format", "xml"); err == nil {
		t.Error("list --format xml succeeded")
	}
}

func TestRun_DryRunPrintsPlan(t *testing.T) {
	root := newTestProject(t, "history:\n  enabled: false\n")

	out, err := execute(t, "run", "--root", root, "--dry-run", "scripts")
	if err != nil {
		t.Fatalf("run --dry-run: %v", err)
	}
	want := "  1. scripts:ts\n  2. scripts:js\n  3. scripts\n"
	if out != want {
		t.Errorf("plan = %q, want %q", out, want)
	}
	if _, err := os.Stat(filepath.Join(root, "client", "dist")); !os.IsNotExist(err) {
		t.Error("dry run wrote outputs")
	}
}

func TestRun_BuildsAndRecordsHistory(t *testing.T) {
	root := newTestProject(t, "")
	src := filepath.Join(root, "client", "src", "scripts")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.js"), []byte("var a=1;"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--root", root, "scripts")
	if err != nil {
		t.Fatalf("assetflow scripts: %v", err)
	}
	if !strings.Contains(out, "Finished 'scripts:js'") {
		t.Errorf("output missing task line:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(root, "client", "dist", "scripts", "scripts.js")); err != nil {
		t.Errorf("scripts.js not written: %v", err)
	}

	out, err = execute(t, "history", "--root", root)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "scripts") || !strings.Contains(out, "succeeded") {
		t.Errorf("history missing the run:\n%s", out)
	}
}

func TestRun_FailureExitsWithError(t *testing.T) {
	root := newTestProject(t, `
history:
  enabled: false
tasks:
  - name: broken
    run: exit 3
`)

	_, err := execute(t, "run", "--root", root, "broken")
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("run broken = %v, want a failure naming the task", err)
	}
}

func TestRun_UnknownTask(t *testing.T) {
	root := newTestProject(t, "history:\n  enabled: false\n")
	if _, err := execute(t, "--root", root, "nope"); err == nil {
		t.Error("unknown task succeeded")
	}
}

func TestConfig_PrintsYAML(t *testing.T) {
	root := newTestProject(t, "proxy:\n  port: 4000\n")

	out, err := execute(t, "config", "--root", root, "--env", "production")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	for _, want := range []string{"# project config: .assetflow.yaml", "port: 4000", "env: production"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		ev   runner.Event
		want string
	}{
		{"started", runner.Event{Type: runner.EventTaskStarted, Task: "css", Timestamp: ts}, "[15:04:05] Starting 'css'..."},
		{"finished", runner.Event{Type: runner.EventTaskCompleted, Task: "css", Duration: 42 * time.Millisecond, Timestamp: ts}, "[15:04:05] Finished 'css' after 42 ms"},
		{"skipped", runner.Event{Type: runner.EventTaskSkipped, Task: "build", Message: "images failed", Timestamp: ts}, "[15:04:05] Skipped 'build': images failed"},
		{"run finished", runner.Event{Type: runner.EventRunFinished, Duration: 1500 * time.Millisecond, Timestamp: ts}, "[15:04:05] Done in 1.50 s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatEvent(tt.ev); got != tt.want {
				t.Errorf("formatEvent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "assetflow version ") {
		t.Errorf("version output = %q", out)
	}
}
