package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Finalize merges the identifiers of every artifact in paths into out:
// well-formed http(s) URL lines only, deduplicated, sorted, one per line.
// Missing artifacts are skipped. Running it again over the same inputs
// produces an identical file.
func Finalize(paths []string, out string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]struct{})
	for _, p := range paths {
		if err := collect(p, seen); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("result artifact missing, skipping", "path", p)
				continue
			}
			return nil, err
		}
	}

	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	if err := writeLines(out, urls); err != nil {
		return nil, err
	}

	logger.Info("combined unique results written", "path", out, "count", len(urls), "artifacts", len(paths))
	return urls, nil
}

func collect(path string, seen map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if IsIdentifier(line) {
			seen[line] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("artifact: reading %s: %w", path, err)
	}
	return nil
}

// IsIdentifier reports whether line is a well-formed absolute http(s) URL.
// Header and blank lines of an artifact are not.
func IsIdentifier(line string) bool {
	if line == "" || strings.ContainsAny(line, " \t") {
		return false
	}
	u, err := url.Parse(line)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// writeLines replaces path atomically.
func writeLines(path string, lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".combined-*")
	if err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	for _, l := range lines {
		bw.WriteString(l)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	return nil
}
