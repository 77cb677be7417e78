package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/slsharvest/internal/storage"
)

func TestMetricsServer(t *testing.T) {
	srv, err := Start(0, nil)
	if err != nil {
		t.Fatalf("failed to start metrics server: %v", err)
	}
	defer srv.Stop(context.Background())

	RecordRequest(&storage.PageRecord{
		Kind:     storage.KindPage,
		Filename: "serverless.yml",
		Outcome:  storage.OutcomeOK,
		Items:    7,
		Duration: 250 * time.Millisecond,
	})
	RecordRequest(&storage.PageRecord{Kind: storage.KindProbe, Outcome: storage.OutcomeTransport})
	RecordRequest(nil)
	RecordBucket("serverless.yml", true)
	RecordNarrow("serverless.yml")
	SetInterval("serverless.yml", 40)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	output := string(body)

	for _, want := range []string{
		`slsharvest_requests_total{kind="page",outcome="ok"}`,
		`slsharvest_requests_total{kind="probe",outcome="transport_error"}`,
		`slsharvest_request_duration_seconds_bucket`,
		`slsharvest_identifiers_total{filename="serverless.yml"} 7`,
		`slsharvest_buckets_total{filename="serverless.yml"}`,
		`slsharvest_capped_buckets_total{filename="serverless.yml"}`,
		`slsharvest_narrowed_total{filename="serverless.yml"}`,
		`slsharvest_interval_bytes{filename="serverless.yml"} 40`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected metrics output to contain %s", want)
		}
	}
}

func TestStopNil(t *testing.T) {
	var s *Server
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("expected nil error stopping a nil server, got %v", err)
	}
}
