package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/slsharvest/internal/storage"
)

func TestGenerateSummary(t *testing.T) {
	now := time.Now()

	records := []*storage.PageRecord{
		{
			RunID:      "run-1",
			Kind:       storage.KindProbe,
			Filename:   "serverless.yml",
			StatusCode: 200,
			Outcome:    storage.OutcomeOK,
			Pages:      3,
			CreatedAt:  now,
		},
		{
			RunID:      "run-1",
			Kind:       storage.KindPage,
			Filename:   "serverless.yml",
			Page:       1,
			StatusCode: 200,
			Outcome:    storage.OutcomeOK,
			Items:      30,
			CreatedAt:  now.Add(1 * time.Second),
		},
		{
			RunID:      "run-1",
			Kind:       storage.KindPage,
			Filename:   "serverless.yml",
			Page:       2,
			StatusCode: 200,
			Outcome:    storage.OutcomeMalformed,
			CreatedAt:  now.Add(2 * time.Second),
			Error:      "search: malformed response",
		},
		{
			RunID:     "run-1",
			Kind:      storage.KindPage,
			Filename:  "serverless.ts",
			Page:      1,
			Outcome:   storage.OutcomeTransport,
			CreatedAt: now.Add(3 * time.Second),
			Error:     "timeout",
		},
	}

	summary := GenerateSummary(records)

	if summary.RunID != "run-1" {
		t.Errorf("expected run id run-1, got %q", summary.RunID)
	}
	if summary.TotalRequests != 4 {
		t.Errorf("expected 4 total requests, got %d", summary.TotalRequests)
	}
	if summary.TotalErrors != 2 {
		t.Errorf("expected 2 errors, got %d", summary.TotalErrors)
	}
	if summary.TotalMalformed != 1 {
		t.Errorf("expected 1 malformed page, got %d", summary.TotalMalformed)
	}
	if summary.TotalIdentifiers != 30 {
		t.Errorf("expected 30 identifiers, got %d", summary.TotalIdentifiers)
	}
	if summary.RequestsByKind[storage.KindPage] != 3 {
		t.Errorf("expected 3 page requests, got %d", summary.RequestsByKind[storage.KindPage])
	}
	if summary.StatusCodes[200] != 3 {
		t.Errorf("expected 3 200 OK, got %d", summary.StatusCodes[200])
	}
	if _, ok := summary.StatusCodes[0]; ok {
		t.Error("transport failures must not be counted as a status code")
	}

	yml := summary.Filenames["serverless.yml"]
	if yml == nil {
		t.Fatal("missing serverless.yml summary")
	}
	if yml.Probes != 1 || yml.Pages != 2 || yml.Identifiers != 30 || yml.Malformed != 1 {
		t.Errorf("unexpected serverless.yml summary: %+v", *yml)
	}
	if ts := summary.Filenames["serverless.ts"]; ts == nil || ts.Errors != 1 {
		t.Errorf("unexpected serverless.ts summary: %+v", ts)
	}

	if summary.Duration != 3*time.Second {
		t.Errorf("expected 3s duration, got %v", summary.Duration)
	}
}

func TestGenerateSummary_Empty(t *testing.T) {
	summary := GenerateSummary(nil)
	if summary.TotalRequests != 0 || summary.Filenames == nil {
		t.Errorf("expected an empty, initialized summary, got %+v", summary)
	}
}

func TestWriteJSON(t *testing.T) {
	summary := Summary{
		TotalRequests: 5,
	}
	var buf bytes.Buffer
	err := WriteJSON(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), `"TotalRequests": 5`) {
		t.Errorf("expected JSON to contain TotalRequests: 5")
	}
}

func TestWriteText(t *testing.T) {
	summary := Summary{
		RunID:         "run-1",
		TotalRequests: 5,
		TotalErrors:   1,
		StatusCodes: map[int]int{
			200: 4,
			500: 1,
		},
		Filenames: map[string]*FileSummary{
			"serverless.yml": {Pages: 4, Identifiers: 120},
		},
	}
	var buf bytes.Buffer
	err := WriteText(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Total Fetch:   5 requests") {
		t.Errorf("expected text to contain Total Fetch: 5")
	}
	if !strings.Contains(out, "200: 4") {
		t.Errorf("expected text to contain 200: 4")
	}
	if !strings.Contains(out, "serverless.yml: 120 ids, 4 pages") {
		t.Errorf("expected per-filename line, got:\n%s", out)
	}
}

func TestWriteHTML(t *testing.T) {
	summary := Summary{
		TotalRequests: 10,
		TotalErrors:   2,
		Filenames: map[string]*FileSummary{
			"serverless.json": {Identifiers: 3},
		},
	}
	var buf bytes.Buffer
	err := WriteHTML(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>Harvest Report</title>") {
		t.Errorf("expected HTML title")
	}
	if !strings.Contains(out, "serverless.json") {
		t.Errorf("expected HTML to contain serverless.json")
	}
}
