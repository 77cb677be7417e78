package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	texttemplate "text/template"
	"time"

	"github.com/FranksOps/slsharvest/internal/storage"
)

// FileSummary aggregates the ledger for one target filename.
type FileSummary struct {
	Probes      int
	Pages       int
	Identifiers int
	Errors      int
	Malformed   int
}

// Summary contains aggregated metrics about a harvest run.
type Summary struct {
	RunID            string
	TotalRequests    int
	TotalErrors      int
	TotalMalformed   int
	TotalIdentifiers int
	RequestsByKind   map[storage.Kind]int
	Outcomes         map[storage.Outcome]int
	StatusCodes      map[int]int
	Filenames        map[string]*FileSummary
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}

// GenerateSummary processes the ledger records of a run.
func GenerateSummary(records []*storage.PageRecord) Summary {
	s := Summary{
		RequestsByKind: make(map[storage.Kind]int),
		Outcomes:       make(map[storage.Outcome]int),
		StatusCodes:    make(map[int]int),
		Filenames:      make(map[string]*FileSummary),
	}

	if len(records) == 0 {
		return s
	}

	s.RunID = records[0].RunID
	s.StartTime = records[0].CreatedAt
	s.EndTime = records[0].CreatedAt

	for _, r := range records {
		s.TotalRequests++
		s.RequestsByKind[r.Kind]++
		s.Outcomes[r.Outcome]++
		if r.Outcome != storage.OutcomeOK {
			s.TotalErrors++
		}
		if r.Outcome == storage.OutcomeMalformed {
			s.TotalMalformed++
		}
		if r.StatusCode > 0 {
			s.StatusCodes[r.StatusCode]++
		}

		if r.Filename != "" {
			fs := s.Filenames[r.Filename]
			if fs == nil {
				fs = &FileSummary{}
				s.Filenames[r.Filename] = fs
			}
			switch r.Kind {
			case storage.KindProbe:
				fs.Probes++
			case storage.KindPage:
				fs.Pages++
				fs.Identifiers += r.Items
				s.TotalIdentifiers += r.Items
			}
			if r.Outcome != storage.OutcomeOK {
				fs.Errors++
			}
			if r.Outcome == storage.OutcomeMalformed {
				fs.Malformed++
			}
		}

		if r.CreatedAt.Before(s.StartTime) {
			s.StartTime = r.CreatedAt
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}
	}

	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Harvest Summary
---------------
Run:           {{.RunID}}
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Total Fetch:   {{.TotalRequests}} requests
Identifiers:   {{.TotalIdentifiers}} (before dedup)
Total Errors:  {{.TotalErrors}}
Malformed:     {{.TotalMalformed}}

Requests:
{{- range $kind, $count := .RequestsByKind}}
  {{$kind}}: {{$count}}
{{- else}}
  None
{{- end}}

Status Codes:
{{- range $code, $count := .StatusCodes}}
  {{$code}}: {{$count}}
{{- else}}
  None
{{- end}}

Filenames:
{{- range $name, $fs := .Filenames}}
  {{$name}}: {{$fs.Identifiers}} ids, {{$fs.Pages}} pages, {{$fs.Probes}} probes, {{$fs.Errors}} errors
{{- else}}
  None
{{- end}}
`

	t, err := texttemplate.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	return nil
}

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Harvest Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Harvest Report {{.RunID}}</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Requests</div>
    <div class="stat-val">{{.TotalRequests}}</div>
  </div>
  <div class="stat-card">
    <div>Identifiers</div>
    <div class="stat-val">{{.TotalIdentifiers}}</div>
  </div>
  <div class="stat-card">
    <div>Errors</div>
    <div class="stat-val" style="color: {{if gt .TotalErrors 0}}red{{else}}green{{end}};">{{.TotalErrors}}</div>
  </div>

  <h3>Status Codes</h3>
  <table>
    <tr><th>Code</th><th>Count</th></tr>
    {{- range $code, $count := .StatusCodes}}
    <tr><td>{{$code}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Filenames</h3>
  <table>
    <tr><th>Filename</th><th>Identifiers</th><th>Pages</th><th>Probes</th><th>Malformed</th></tr>
    {{- range $name, $fs := .Filenames}}
    <tr><td>{{$name}}</td><td>{{$fs.Identifiers}}</td><td>{{$fs.Pages}}</td><td>{{$fs.Probes}}</td><td>{{$fs.Malformed}}</td></tr>
    {{- else}}
    <tr><td colspan="5">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := template.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	return nil
}
