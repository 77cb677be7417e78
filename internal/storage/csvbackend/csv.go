package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/slsharvest/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"run_id",
	"kind",
	"filename",
	"range_start",
	"range_end",
	"page",
	"status_code",
	"outcome",
	"items",
	"pages",
	"duration_ms",
	"created_at",
	"error",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: %w", err)
		}
	}

	return &csvBackend{file: f}, nil
}

func (b *csvBackend) Save(ctx context.Context, r *storage.PageRecord) error {
	record := []string{
		r.ID,
		r.RunID,
		string(r.Kind),
		r.Filename,
		strconv.FormatInt(r.RangeStart, 10),
		strconv.FormatInt(r.RangeEnd, 10),
		strconv.Itoa(r.Page),
		strconv.Itoa(r.StatusCode),
		string(r.Outcome),
		strconv.Itoa(r.Items),
		strconv.Itoa(r.Pages),
		strconv.FormatInt(r.Duration.Milliseconds(), 10),
		r.CreatedAt.Format(time.RFC3339Nano),
		r.Error,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.PageRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*storage.PageRecord{}, nil
		}
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	var matched []*storage.PageRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: %w", err)
		}
		if len(row) != len(headers) {
			continue // skip malformed rows
		}

		rec := parseRow(row)
		if filter.Match(rec) {
			matched = append(matched, rec)
		}
	}

	return storage.Page(matched, filter.Offset, filter.Limit), nil
}

func parseRow(row []string) *storage.PageRecord {
	rangeStart, _ := strconv.ParseInt(row[4], 10, 64)
	rangeEnd, _ := strconv.ParseInt(row[5], 10, 64)
	page, _ := strconv.Atoi(row[6])
	status, _ := strconv.Atoi(row[7])
	items, _ := strconv.Atoi(row[9])
	pages, _ := strconv.Atoi(row[10])
	durationMs, _ := strconv.ParseInt(row[11], 10, 64)
	createdAt, _ := time.Parse(time.RFC3339Nano, row[12])

	return &storage.PageRecord{
		ID:         row[0],
		RunID:      row[1],
		Kind:       storage.Kind(row[2]),
		Filename:   row[3],
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
		Page:       page,
		StatusCode: status,
		Outcome:    storage.Outcome(row[8]),
		Items:      items,
		Pages:      pages,
		Duration:   time.Duration(durationMs) * time.Millisecond,
		CreatedAt:  createdAt,
		Error:      row[13],
	}
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
