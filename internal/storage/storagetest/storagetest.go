// Package storagetest holds the conformance checks every ledger backend
// must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/FranksOps/slsharvest/internal/storage"
)

// Records returns three records with distinct kinds, outcomes and times.
// Times are truncated to the millisecond so every backend round-trips them.
func Records(now time.Time) []*storage.PageRecord {
	now = now.Truncate(time.Millisecond).UTC()
	return []*storage.PageRecord{
		{
			ID: "rec1", RunID: "run-a", Kind: storage.KindProbe,
			Filename: "serverless.yml", RangeStart: 0, RangeEnd: 19,
			StatusCode: 200, Outcome: storage.OutcomeOK, Pages: 3,
			Duration: 12 * time.Millisecond, CreatedAt: now.Add(-3 * time.Minute),
		},
		{
			ID: "rec2", RunID: "run-a", Kind: storage.KindPage,
			Filename: "serverless.yml", RangeStart: 0, RangeEnd: 19, Page: 2,
			StatusCode: 200, Outcome: storage.OutcomeMalformed,
			Duration: 40 * time.Millisecond, CreatedAt: now.Add(-2 * time.Minute),
			Error: "search: malformed response: missing items",
		},
		{
			ID: "rec3", RunID: "run-a", Kind: storage.KindPage,
			Filename: "serverless.ts", RangeStart: 20, RangeEnd: 59, Page: 1,
			StatusCode: 200, Outcome: storage.OutcomeOK, Items: 42,
			Duration: 30 * time.Millisecond, CreatedAt: now.Add(-1 * time.Minute),
		},
	}
}

// Run saves Records into b and checks filtering, ordering and paging.
func Run(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	recs := Records(now)

	for _, r := range recs {
		if err := b.Save(ctx, r); err != nil {
			t.Fatalf("Save(%s): %v", r.ID, err)
		}
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Query all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	for i, want := range []string{"rec1", "rec2", "rec3"} {
		if all[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, all[i].ID)
		}
	}

	got := all[1]
	want := recs[1]
	if got.Kind != want.Kind || got.Page != want.Page || got.Outcome != want.Outcome ||
		got.Error != want.Error || got.Duration != want.Duration || got.RangeEnd != want.RangeEnd {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created_at mismatch: got %v, want %v", got.CreatedAt, want.CreatedAt)
	}

	byFile, err := b.Query(ctx, storage.Filter{Filename: "serverless.ts"})
	if err != nil {
		t.Fatalf("Query by filename: %v", err)
	}
	if len(byFile) != 1 || byFile[0].ID != "rec3" || byFile[0].Items != 42 {
		t.Errorf("filename filter: got %v", byFile)
	}

	malformed, err := b.Query(ctx, storage.Filter{Kind: storage.KindPage, Outcome: storage.OutcomeMalformed})
	if err != nil {
		t.Fatalf("Query by outcome: %v", err)
	}
	if len(malformed) != 1 || malformed[0].ID != "rec2" {
		t.Errorf("outcome filter: got %v", malformed)
	}

	since := now.Add(-150 * time.Second)
	recent, err := b.Query(ctx, storage.Filter{Since: &since})
	if err != nil {
		t.Fatalf("Query since: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("since filter: expected 2, got %d", len(recent))
	}

	paged, err := b.Query(ctx, storage.Filter{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("Query paged: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "rec2" {
		t.Errorf("paging: got %v", paged)
	}

	none, err := b.Query(ctx, storage.Filter{RunID: "run-b"})
	if err != nil {
		t.Fatalf("Query other run: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no records for another run, got %d", len(none))
	}
}
