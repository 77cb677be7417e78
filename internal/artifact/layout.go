// Package artifact owns the on-disk output of a harvest run: per-target
// result files, diagnostic dumps of malformed responses, the run log and
// the combined, deduplicated URL list.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DateFormat stamps the result, log and combined file names.
	DateFormat = "20060102"
	// RunFormat names a default run root, e.g. code_search_20240102_150405.
	RunFormat = "20060102_150405"

	resultsDir = "results_by_filename"
	errorsDir  = "errors"
	logsDir    = "logs"
)

// Layout resolves the paths of one run root.
type Layout struct {
	Root string
	Date string
}

// NewLayout returns the layout for root, dated by now.
func NewLayout(root string, now time.Time) Layout {
	return Layout{Root: root, Date: now.Format(DateFormat)}
}

// DefaultRoot is the run root used when none is configured.
func DefaultRoot(now time.Time) string {
	return filepath.Join("data", "raw", "code_search_"+now.Format(RunFormat))
}

// Ensure creates the run root and its subdirectories.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.ResultsDir(), l.ErrorsDir(), l.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("artifact: %w", err)
		}
	}
	return nil
}

func (l Layout) ResultsDir() string { return filepath.Join(l.Root, resultsDir) }
func (l Layout) ErrorsDir() string  { return filepath.Join(l.Root, errorsDir) }
func (l Layout) LogsDir() string    { return filepath.Join(l.Root, logsDir) }

// ResultPath is the artifact file for one target filename.
func (l Layout) ResultPath(filename string) string {
	return filepath.Join(l.ResultsDir(), Sanitize(filename)+"_results_"+l.Date+".txt")
}

// LogPath is the run log file.
func (l Layout) LogPath() string {
	return filepath.Join(l.LogsDir(), "code_search_"+l.Date+".log")
}

// CombinedPath is where Finalize writes the canonical list.
func (l Layout) CombinedPath() string {
	return filepath.Join(l.Root, "combined_unique_results_"+l.Date+".txt")
}

// ResultPaths lists every result artifact under the run root, whatever date
// it carries, in name order.
func (l Layout) ResultPaths() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(l.ResultsDir(), "*_results_*.txt"))
	if err != nil {
		return nil, fmt.Errorf("artifact: %w", err)
	}
	return paths, nil
}

// ExistingLayout returns the layout of a run already on disk. Its date is
// taken from the run's result artifacts, the most recent one when they
// disagree, so the combined list keeps the name the run gave it.
func ExistingLayout(root string) (Layout, error) {
	l := Layout{Root: root}
	paths, err := l.ResultPaths()
	if err != nil {
		return l, err
	}
	for _, p := range paths {
		if date, ok := resultDate(p); ok && date > l.Date {
			l.Date = date
		}
	}
	if l.Date == "" {
		return l, fmt.Errorf("artifact: no dated result artifacts under %s", l.ResultsDir())
	}
	return l, nil
}

func resultDate(path string) (string, bool) {
	name := strings.TrimSuffix(filepath.Base(path), ".txt")
	i := strings.LastIndex(name, "_results_")
	if i < 0 {
		return "", false
	}
	date := name[i+len("_results_"):]
	if _, err := time.Parse(DateFormat, date); err != nil {
		return "", false
	}
	return date, true
}

// Sanitize maps a filename to a token safe for use inside a file name.
// Anything other than ASCII letters, digits, '-' and '_' becomes '_'.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
