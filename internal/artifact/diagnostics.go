package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/FranksOps/slsharvest/internal/partition"
)

const dumpTimestamp = "20060102_150405.000000000"

// Diagnostics persists raw response bodies that failed validation.
type Diagnostics struct {
	dir string
	now func() time.Time
}

// NewDiagnostics writes dumps into the errors directory of layout.
func NewDiagnostics(layout Layout) *Diagnostics {
	return &Diagnostics{dir: layout.ErrorsDir(), now: time.Now}
}

// Dump writes body verbatim and returns the file path. Names carry the
// target, range, page and a timestamp; a numeric suffix keeps them unique
// when two dumps land on the same instant.
func (d *Diagnostics) Dump(filename string, b partition.Bucket, page int, body []byte) (string, error) {
	base := fmt.Sprintf("error_response_%s_%d-%d_page%d_%s",
		Sanitize(filename), b.Start, b.End, page, d.now().Format(dumpTimestamp))

	for i := 0; ; i++ {
		name := base + ".json"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.json", base, i)
		}
		path := filepath.Join(d.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("artifact: %w", err)
		}
		if _, err := f.Write(body); err != nil {
			f.Close()
			return "", fmt.Errorf("artifact: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("artifact: %w", err)
		}
		return path, nil
	}
}
