package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/slsharvest/internal/partition"
)

func newLayout(t *testing.T) Layout {
	t.Helper()
	l := NewLayout(t.TempDir(), time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	return l
}

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/runs/x", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))

	tests := []struct {
		got, want string
	}{
		{l.ResultPath("serverless.yml"), "/runs/x/results_by_filename/serverless_yml_results_20240305.txt"},
		{l.LogPath(), "/runs/x/logs/code_search_20240305.log"},
		{l.CombinedPath(), "/runs/x/combined_unique_results_20240305.txt"},
	}
	for _, tt := range tests {
		if tt.got != filepath.FromSlash(tt.want) {
			t.Errorf("got %s, want %s", tt.got, tt.want)
		}
	}

	root := DefaultRoot(time.Date(2024, 3, 5, 10, 4, 5, 0, time.UTC))
	if root != filepath.Join("data", "raw", "code_search_20240305_100405") {
		t.Errorf("unexpected default root %s", root)
	}
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"serverless.yml":   "serverless_yml",
		"a/b c":            "a_b_c",
		"already_ok-name1": "already_ok-name1",
		"":                 "_",
	}
	for in, want := range tests {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordBucket(t *testing.T) {
	l := newLayout(t)
	w := NewResultWriter(l, nil)

	path, err := w.Begin("serverless.yml")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	b1 := partition.Bucket{Start: 0, End: 19, Width: 20}
	b2 := partition.Bucket{Start: 20, End: 59, Width: 40}
	if err := w.RecordBucket("serverless.yml", b1, []string{"https://github.com/a/b", "https://github.com/c/d"}); err != nil {
		t.Fatalf("RecordBucket: %v", err)
	}
	if err := w.RecordBucket("serverless.yml", b2, nil); err != nil {
		t.Fatalf("RecordBucket empty: %v", err)
	}
	if err := w.RecordBucket("serverless.yml", b2, []string{"https://github.com/e/f"}); err != nil {
		t.Fatalf("RecordBucket: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "# Results for: serverless.yml (size: 0..19)\n" +
		"https://github.com/a/b\nhttps://github.com/c/d\n\n" +
		"# Results for: serverless.yml (size: 20..59)\n" +
		"https://github.com/e/f\n\n"
	if string(data) != want {
		t.Errorf("unexpected artifact:\n%q\nwant:\n%q", data, want)
	}
}

func TestBeginTruncatesOnce(t *testing.T) {
	l := newLayout(t)
	path := l.ResultPath("serverless.ts")
	if err := os.WriteFile(path, []byte("stale from an earlier run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewResultWriter(l, nil)
	b := partition.Bucket{Start: 0, End: 9, Width: 10}
	if err := w.RecordBucket("serverless.ts", b, []string{"https://github.com/a/b"}); err != nil {
		t.Fatalf("RecordBucket: %v", err)
	}
	if _, err := w.Begin("serverless.ts"); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "stale") {
		t.Error("expected stale content to be truncated")
	}
	if !strings.Contains(string(data), "https://github.com/a/b") {
		t.Error("a second Begin must not truncate recorded buckets")
	}
	if got := w.Paths(); !reflect.DeepEqual(got, []string{path}) {
		t.Errorf("Paths() = %v", got)
	}
}

func TestBeginRejectsCollision(t *testing.T) {
	l := newLayout(t)
	w := NewResultWriter(l, nil)

	b := partition.Bucket{Start: 0, End: 9, Width: 10}
	if err := w.RecordBucket("serverless.yml", b, []string{"https://github.com/a/b"}); err != nil {
		t.Fatalf("RecordBucket: %v", err)
	}

	if _, err := w.Begin("serverless_yml"); !errors.Is(err, ErrCollision) {
		t.Fatalf("expected ErrCollision, got %v", err)
	}
	if err := w.RecordBucket("serverless_yml", b, []string{"https://github.com/c/d"}); !errors.Is(err, ErrCollision) {
		t.Fatalf("expected ErrCollision from RecordBucket, got %v", err)
	}

	data, _ := os.ReadFile(l.ResultPath("serverless.yml"))
	if !strings.Contains(string(data), "https://github.com/a/b") || strings.Contains(string(data), "https://github.com/c/d") {
		t.Errorf("first target's artifact was disturbed:\n%s", data)
	}
	if got := w.Paths(); len(got) != 1 {
		t.Errorf("Paths() = %v", got)
	}
}

func TestExistingLayout(t *testing.T) {
	l := newLayout(t)
	os.WriteFile(filepath.Join(l.ResultsDir(), "a_results_20240305.txt"), nil, 0o644)
	os.WriteFile(filepath.Join(l.ResultsDir(), "b_results_20240304.txt"), nil, 0o644)
	os.WriteFile(filepath.Join(l.ResultsDir(), "c_results_undated.txt"), nil, 0o644)

	got, err := ExistingLayout(l.Root)
	if err != nil {
		t.Fatalf("ExistingLayout: %v", err)
	}
	if got.Date != "20240305" {
		t.Errorf("Date = %q, want 20240305", got.Date)
	}
	if got.CombinedPath() != filepath.Join(l.Root, "combined_unique_results_20240305.txt") {
		t.Errorf("unexpected combined path %s", got.CombinedPath())
	}

	if _, err := ExistingLayout(t.TempDir()); err == nil {
		t.Error("expected error for a run without artifacts")
	}
}

func TestDiagnosticsDump(t *testing.T) {
	l := newLayout(t)
	d := NewDiagnostics(l)
	fixed := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	b := partition.Bucket{Start: 100, End: 199, Width: 100}
	p1, err := d.Dump("serverless.yml", b, 2, []byte("<html>oops</html>"))
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	p2, err := d.Dump("serverless.yml", b, 2, []byte("again"))
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if p1 == p2 {
		t.Fatal("expected unique dump names")
	}
	if !strings.HasPrefix(filepath.Base(p1), "error_response_serverless_yml_100-199_page2_") {
		t.Errorf("unexpected dump name %s", filepath.Base(p1))
	}

	data, _ := os.ReadFile(p1)
	if string(data) != "<html>oops</html>" {
		t.Errorf("dump is not verbatim: %q", data)
	}

	entries, _ := os.ReadDir(l.ErrorsDir())
	if len(entries) != 2 {
		t.Errorf("expected 2 dumps, got %d", len(entries))
	}
}

func TestFinalize(t *testing.T) {
	l := newLayout(t)
	a := filepath.Join(l.ResultsDir(), "a_results_20240305.txt")
	b := filepath.Join(l.ResultsDir(), "b_results_20240305.txt")

	os.WriteFile(a, []byte("# Results for: a (size: 0..9)\nhttps://example.com/org/repo\nhttps://github.com/z/z\n\n"), 0o644)
	os.WriteFile(b, []byte("# Results for: b (size: 0..9)\nhttps://example.com/org/repo\nnot a url\nftp://host/x\nhttps://github.com/a/a\n\n"), 0o644)

	out := l.CombinedPath()
	urls, err := Finalize([]string{a, b, filepath.Join(l.ResultsDir(), "missing.txt")}, out, nil)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	want := []string{"https://example.com/org/repo", "https://github.com/a/a", "https://github.com/z/z"}
	if !reflect.DeepEqual(urls, want) {
		t.Errorf("Finalize() = %v, want %v", urls, want)
	}

	first, _ := os.ReadFile(out)
	if string(first) != strings.Join(want, "\n")+"\n" {
		t.Errorf("unexpected combined file:\n%s", first)
	}

	if _, err := Finalize([]string{a, b}, out, nil); err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
	second, _ := os.ReadFile(out)
	if string(first) != string(second) {
		t.Error("finalize is not idempotent")
	}

	paths, err := l.ResultPaths()
	if err != nil {
		t.Fatalf("ResultPaths: %v", err)
	}
	if !reflect.DeepEqual(paths, []string{a, b}) {
		t.Errorf("ResultPaths() = %v", paths)
	}
}

func TestFinalizeEmpty(t *testing.T) {
	l := newLayout(t)
	urls, err := Finalize(nil, l.CombinedPath(), nil)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(urls) != 0 {
		t.Errorf("expected no urls, got %v", urls)
	}
	info, err := os.Stat(l.CombinedPath())
	if err != nil || info.Size() != 0 {
		t.Errorf("expected an empty combined file, err=%v", err)
	}
}

func TestIsIdentifier(t *testing.T) {
	tests := map[string]bool{
		"https://github.com/a/b":          true,
		"http://example.com/x":            true,
		"":                                false,
		"# Results for: x (size: 0..1)":   false,
		"github.com/a/b":                  false,
		"https://":                        false,
		"https://github.com/a/b trailing": false,
	}
	for in, want := range tests {
		if got := IsIdentifier(in); got != want {
			t.Errorf("IsIdentifier(%q) = %v, want %v", in, got, want)
		}
	}
}
