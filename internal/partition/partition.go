// Package partition divides a file-size domain into contiguous buckets whose
// width adapts to how dense the search results are.
//
// A Partitioner is immutable; all mutable state lives in State values that
// callers thread through Bucket, Narrow and Step. That keeps each search
// target's offset and interval private to whoever is walking it.
package partition

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerate reports a bucket whose computed start exceeds its end.
var ErrDegenerate = errors.New("partition: degenerate bucket")

// MaxBound caps the upper bound and the maximum interval. Offset plus
// interval stays below math.MaxInt64 for any valid Config.
const MaxBound = math.MaxInt64 / 4

// Config bounds the domain and the interval width.
type Config struct {
	Lower       int64
	Upper       int64
	MinInterval int64
	MaxInterval int64
	// LowResults is the result count under which a bucket counts as sparse.
	LowResults int
}

// Validate checks the bounds for internal consistency.
func (c Config) Validate() error {
	switch {
	case c.Lower < 0:
		return fmt.Errorf("partition: lower bound %d is negative", c.Lower)
	case c.Upper < c.Lower:
		return fmt.Errorf("partition: upper bound %d below lower bound %d", c.Upper, c.Lower)
	case c.Upper > MaxBound:
		return fmt.Errorf("partition: upper bound %d exceeds %d", c.Upper, int64(MaxBound))
	case c.MinInterval < 1:
		return fmt.Errorf("partition: min interval %d must be at least 1", c.MinInterval)
	case c.MaxInterval < c.MinInterval:
		return fmt.Errorf("partition: max interval %d below min interval %d", c.MaxInterval, c.MinInterval)
	case c.MaxInterval > MaxBound:
		return fmt.Errorf("partition: max interval %d exceeds %d", c.MaxInterval, int64(MaxBound))
	case c.LowResults < 0:
		return fmt.Errorf("partition: low results threshold %d is negative", c.LowResults)
	}
	return nil
}

// Bucket is an inclusive size range plus the interval width that produced it.
type Bucket struct {
	Start int64
	End   int64
	Width int64
}

// Range renders the bucket the way the search query expects it.
func (b Bucket) Range() string {
	return fmt.Sprintf("%d..%d", b.Start, b.End)
}

// State is the per-target cursor.
type State struct {
	Offset   int64
	Interval int64
}

// Feedback is what the fetcher learned about the bucket just completed.
type Feedback struct {
	Results    int
	HitCeiling bool
}

// Partitioner computes buckets for one domain.
type Partitioner struct {
	cfg Config
}

// New validates cfg and returns a Partitioner.
func New(cfg Config) (Partitioner, error) {
	if err := cfg.Validate(); err != nil {
		return Partitioner{}, err
	}
	return Partitioner{cfg: cfg}, nil
}

// Config returns the bounds the partitioner was built with.
func (p Partitioner) Config() Config {
	return p.cfg
}

// Start returns the initial state: the lower bound at the minimum interval.
func (p Partitioner) Start() State {
	return State{Offset: p.cfg.Lower, Interval: p.cfg.MinInterval}
}

// Bucket materializes the bucket at the state's offset. ok is false once the
// offset has passed the upper bound.
func (p Partitioner) Bucket(s State) (b Bucket, ok bool, err error) {
	if s.Offset > p.cfg.Upper {
		return Bucket{}, false, nil
	}
	end := s.Offset + s.Interval - 1
	if end > p.cfg.Upper {
		end = p.cfg.Upper
	}
	b = Bucket{Start: s.Offset, End: end, Width: s.Interval}
	if b.Start > b.End {
		return b, false, fmt.Errorf("%w: start %d > end %d", ErrDegenerate, b.Start, b.End)
	}
	return b, true, nil
}

// Narrow halves the interval without moving the offset. changed is false
// when the interval is already at its minimum.
func (p Partitioner) Narrow(s State) (next State, changed bool) {
	next = s
	next.Interval = p.halve(s.Interval)
	return next, next.Interval != s.Interval
}

// Step advances past the completed bucket and resizes the interval from the
// feedback, then returns the next bucket. The offset moves by used.Width,
// not by the resized interval. When nothing is left the interval is kept as
// it was, since there is no next bucket to size.
func (p Partitioner) Step(s State, used Bucket, fb Feedback) (State, Bucket, bool, error) {
	next := State{Offset: used.Start + used.Width, Interval: s.Interval}
	if next.Offset > p.cfg.Upper {
		return next, Bucket{}, false, nil
	}

	next.Interval = p.adjust(s.Interval, fb)
	b, ok, err := p.Bucket(next)
	return next, b, ok, err
}

func (p Partitioner) adjust(interval int64, fb Feedback) int64 {
	switch {
	case fb.HitCeiling:
		return p.halve(interval)
	case fb.Results < p.cfg.LowResults:
		return p.double(interval)
	default:
		return interval
	}
}

func (p Partitioner) halve(interval int64) int64 {
	n := interval / 2
	if n < p.cfg.MinInterval {
		n = p.cfg.MinInterval
	}
	return n
}

func (p Partitioner) double(interval int64) int64 {
	if interval > p.cfg.MaxInterval/2 {
		return p.cfg.MaxInterval
	}
	n := interval * 2
	if n > p.cfg.MaxInterval {
		n = p.cfg.MaxInterval
	}
	return n
}
