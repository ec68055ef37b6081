package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/go-cmp/cmp"
)

func writeFiles(t *testing.T, fsys billy.Filesystem, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := util.WriteFile(fsys, name, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func readTestFile(t *testing.T, fsys billy.Filesystem, name string) string {
	t.Helper()
	data, err := util.ReadFile(fsys, name)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func TestResolve(t *testing.T) {
	fsys := memfs.New()
	writeFiles(t, fsys, map[string]string{
		"client/src/scripts/b.js":            "b",
		"client/src/scripts/a.js":            "a",
		"client/src/scripts/lib/c.js":        "c",
		"client/src/scripts/skip.ts":         "ts",
		"node_modules/jquery/dist/jquery.js": "jq",
	})

	files, err := Resolve(fsys,
		"node_modules/jquery/dist/jquery.js",
		"client/src/scripts/**/*.js",
		"client/src/scripts/a.js",
	)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := []string{
		"node_modules/jquery/dist/jquery.js",
		"client/src/scripts/a.js",
		"client/src/scripts/b.js",
		"client/src/scripts/lib/c.js",
	}
	if diff := cmp.Diff(want, Paths(files)); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	if files[3].Base != "client/src/scripts" || files[3].Rel != "lib/c.js" {
		t.Errorf("base/rel = %q/%q", files[3].Base, files[3].Rel)
	}
	if files[0].Rel != "jquery.js" {
		t.Errorf("literal rel = %q, want jquery.js", files[0].Rel)
	}
}

func TestResolve_ExcludesAndEmpty(t *testing.T) {
	fsys := osfs.New(t.TempDir())
	writeFiles(t, fsys, map[string]string{
		"x.txt":                    "x",
		"y/z.txt":                  "z",
		"node_modules/ignored.txt": "i",
	})

	files, err := Resolve(fsys, "**/*.*", "!node_modules/**")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{"x.txt", "y/z.txt"}, Paths(files)); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	files, err = Resolve(fsys, "client/src/styles/**/*.css", "missing.css")
	if err != nil {
		t.Fatalf("Resolve of missing globs: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", Paths(files))
	}
}

func TestResolve_InvalidPattern(t *testing.T) {
	if _, err := Resolve(memfs.New(), "src/[a-"); err == nil {
		t.Error("expected error for malformed glob")
	}
}

func TestConcatDest(t *testing.T) {
	fsys := memfs.New()
	writeFiles(t, fsys, map[string]string{
		"client/src/scripts/a.js": "var a=1;",
		"client/src/scripts/b.js": "var b=2;",
	})
	writes := NewWriteLog()

	out, err := New("scripts", "client/src/scripts/**/*.js").
		Pipe(Concat("scripts.js", ""), Dest("client/dist/scripts")).
		Run(context.Background(), fsys, writes, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := readTestFile(t, fsys, "client/dist/scripts/scripts.js"); got != "var a=1;var b=2;" {
		t.Errorf("concat output = %q", got)
	}
	if diff := cmp.Diff([]string{"client/dist/scripts/scripts.js"}, Paths(out)); diff != "" {
		t.Errorf("output paths mismatch (-want +got):\n%s", diff)
	}
	if !writes.WrittenWithin("client/dist/scripts/scripts.js", time.Minute) {
		t.Error("write was not recorded")
	}
}

func TestConcat_NoInputNoOutput(t *testing.T) {
	fsys := memfs.New()
	out, err := New("styles", "client/src/styles/**/*.css").
		Pipe(Concat("styles.css", ""), Dest("client/dist/styles")).
		Run(context.Background(), fsys, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no output, got %v", Paths(out))
	}
	if _, err := fsys.Stat("client/dist/styles/styles.css"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no styles.css, stat err = %v", err)
	}
}

func TestWhen(t *testing.T) {
	upper := Map("upper", func(_ context.Context, f *File) (*File, error) {
		c := f.Clone()
		c.Contents = []byte(strings.ToUpper(string(f.Contents)))
		return c, nil
	})

	for _, cond := range []bool{true, false} {
		files := []*File{{Rel: "a.js", Contents: []byte("abc")}}
		out, err := When(cond, upper).Process(context.Background(), &Runtime{}, files)
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		want := "abc"
		if cond {
			want = "ABC"
		}
		if got := string(out[0].Contents); got != want {
			t.Errorf("When(%v) = %q, want %q", cond, got, want)
		}
	}
}

func TestRun_WrapsStageErrors(t *testing.T) {
	fsys := memfs.New()
	writeFiles(t, fsys, map[string]string{"src/a.css": "a{"})
	boom := errors.New("unclosed block")

	_, err := New("css", "src/*.css").
		Pipe(Map("minify", func(context.Context, *File) (*File, error) { return nil, boom })).
		Run(context.Background(), fsys, nil, nil)

	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "minify" || stageErr.Pipeline != "css" {
		t.Errorf("unexpected error shape: %v", err)
	}
	if !strings.Contains(err.Error(), "src/a.css") {
		t.Errorf("error does not name the file: %v", err)
	}
}

func TestRename(t *testing.T) {
	files := []*File{{Base: "src", Rel: "app.ts"}}
	out, err := Rename(func(rel string) string { return strings.TrimSuffix(rel, ".ts") + ".js" }).
		Process(context.Background(), &Runtime{}, files)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out[0].Path() != "src/app.js" {
		t.Errorf("renamed path = %q", out[0].Path())
	}
}

func TestNewer(t *testing.T) {
	root := t.TempDir()
	fsys := osfs.New(root)
	writeFiles(t, fsys, map[string]string{
		"src/images/fresh.png":  "new",
		"src/images/stale.png":  "old",
		"dist/images/stale.png": "optimized",
	})

	past := time.Now().Add(-time.Hour)
	for _, name := range []string{"src/images/fresh.png", "src/images/stale.png"} {
		if err := os.Chtimes(filepath.Join(root, name), past, past); err != nil {
			t.Fatal(err)
		}
	}
	// fresh.png has an older destination; stale.png's destination is newer than its source.
	writeFiles(t, fsys, map[string]string{"dist/images/fresh.png": "outdated"})
	older := past.Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(root, "dist/images/fresh.png"), older, older); err != nil {
		t.Fatal(err)
	}

	_, err := New("images", "src/images/**/*").
		Pipe(Newer("dist/images"), Dest("dist/images")).
		Run(context.Background(), fsys, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := readTestFile(t, fsys, "dist/images/fresh.png"); got != "new" {
		t.Errorf("fresh.png = %q, want rewritten", got)
	}
	if got := readTestFile(t, fsys, "dist/images/stale.png"); got != "optimized" {
		t.Errorf("stale.png = %q, want untouched", got)
	}
}

type recordingNotifier struct {
	calls [][]string
}

func (n *recordingNotifier) Stream(paths ...string) {
	n.calls = append(n.calls, paths)
}

func TestStream(t *testing.T) {
	n := &recordingNotifier{}
	files := []*File{{Base: "client/dist/styles", Rel: "styles.css"}}

	if _, err := Stream(n).Process(context.Background(), &Runtime{}, files); err != nil {
		t.Fatal(err)
	}
	if _, err := Stream(n).Process(context.Background(), &Runtime{}, nil); err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"client/dist/styles/styles.css"}}
	if diff := cmp.Diff(want, n.calls); diff != "" {
		t.Errorf("stream calls mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteLog(t *testing.T) {
	l := NewWriteLog()
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Record("client/src/scripts/scripts-ts.js")

	l.now = func() time.Time { return now.Add(500 * time.Millisecond) }
	if !l.WrittenWithin("client/src/scripts/scripts-ts.js", time.Second) {
		t.Error("expected recent write")
	}
	l.now = func() time.Time { return now.Add(2 * time.Second) }
	if l.WrittenWithin("client/src/scripts/scripts-ts.js", time.Second) {
		t.Error("expected write outside window")
	}
	l.Prune(time.Second)
	if len(l.writes) != 0 {
		t.Errorf("expected pruned log, got %v", l.writes)
	}

	var nilLog *WriteLog
	nilLog.Record("x")
	if nilLog.WrittenWithin("x", time.Hour) {
		t.Error("nil log reported a write")
	}
}
