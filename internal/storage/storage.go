package storage

import (
	"context"
	"time"
)

// Kind identifies which API call a record describes.
type Kind string

const (
	KindAuth  Kind = "auth"
	KindProbe Kind = "probe"
	KindPage  Kind = "page"
)

// Outcome classifies how a request ended.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeTransport Outcome = "transport_error"
	OutcomeStatus    Outcome = "http_error"
	OutcomeMalformed Outcome = "malformed"
)

// PageRecord is the ledger entry for one request against the search API.
type PageRecord struct {
	ID         string
	RunID      string
	Kind       Kind
	Filename   string
	RangeStart int64
	RangeEnd   int64
	Page       int // 0 for auth and probe records
	StatusCode int
	Outcome    Outcome
	Items      int // identifiers extracted from a page
	Pages      int // last page reported by a probe
	Duration   time.Duration
	CreatedAt  time.Time
	Error      string // non-empty unless Outcome is OutcomeOK
}

// Filter allows querying for specific PageRecords.
type Filter struct {
	RunID    string
	Filename string
	Kind     Kind
	Outcome  Outcome
	Since    *time.Time
	Limit    int
	Offset   int
}

// Match reports whether r passes the filter's field predicates. Limit and
// Offset are applied by the caller.
func (f Filter) Match(r *PageRecord) bool {
	if f.RunID != "" && r.RunID != f.RunID {
		return false
	}
	if f.Filename != "" && r.Filename != f.Filename {
		return false
	}
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Backend defines the interface for storing and querying the fetch ledger.
type Backend interface {
	Save(ctx context.Context, record *PageRecord) error
	// Query returns matching records oldest first.
	Query(ctx context.Context, filter Filter) ([]*PageRecord, error)
	Close() error
}

// Page applies offset and limit to an already filtered slice.
func Page(records []*PageRecord, offset, limit int) []*PageRecord {
	if offset > 0 {
		if offset >= len(records) {
			return []*PageRecord{}
		}
		records = records[offset:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
