package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/FranksOps/slsharvest/internal/partition"
)

// ErrCollision means two target filenames sanitize to the same artifact.
var ErrCollision = errors.New("artifact: result file already used by another target")

// ResultWriter appends bucketed identifiers to per-target artifact files.
// It is safe for concurrent use by goroutines working on different targets.
type ResultWriter struct {
	layout Layout
	logger *slog.Logger

	mu     sync.Mutex
	begun  map[string]string // filename -> artifact path
	owners map[string]string // artifact path -> filename
}

// NewResultWriter returns a writer rooted at layout.
func NewResultWriter(layout Layout, logger *slog.Logger) *ResultWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultWriter{
		layout: layout,
		logger: logger,
		begun:  make(map[string]string),
		owners: make(map[string]string),
	}
}

// Begin truncates the artifact for filename and returns its path. Only the
// first call for a filename truncates; later calls return the same path.
// A filename whose artifact already belongs to another target yields
// ErrCollision and leaves that artifact untouched.
func (w *ResultWriter) Begin(filename string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if path, ok := w.begun[filename]; ok {
		return path, nil
	}

	path := w.layout.ResultPath(filename)
	if owner, ok := w.owners[path]; ok {
		return "", fmt.Errorf("%w: %q and %q both map to %s", ErrCollision, owner, filename, path)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("artifact: %w", err)
	}

	w.begun[filename] = path
	w.owners[path] = filename
	w.logger.Debug("result artifact truncated", "target", filename, "path", path)
	return path, nil
}

// RecordBucket appends a header, one identifier per line and a blank line
// to the artifact of filename. Nothing is written when ids is empty.
func (w *ResultWriter) RecordBucket(filename string, b partition.Bucket, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	path, err := w.Begin(filename)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("artifact: %w", err)
	}

	bw := bufio.NewWriter(f)
	fmt.Fprintf(bw, "# Results for: %s (size: %s)\n", filename, b.Range())
	for _, id := range ids {
		bw.WriteString(id)
		bw.WriteByte('\n')
	}
	bw.WriteByte('\n')

	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	return nil
}

// Paths returns the artifacts begun by this writer, sorted.
func (w *ResultWriter) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.begun))
	for _, p := range w.begun {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
