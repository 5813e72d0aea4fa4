// Package failure tracks consecutive failures per key so persistently
// unreachable sources surface as actionable alerts.
package failure

import (
	"sync"
	"time"
)

// Record is the current failure state of one key.
type Record struct {
	Key              string
	ConsecutiveCount int
	LastFailureAt    time.Time
}

// Tracker is a keyed consecutive-failure counter. Process-local: a restart
// resets all counts, and scaled-out instances each track their own view.
// A key only resets on an explicit success signal; there is no decay, so a
// source that stays down stays flagged.
type Tracker struct {
	threshold int

	mu      sync.Mutex
	records map[string]*Record
}

// New creates a tracker that flags keys at the given consecutive-failure
// threshold.
func New(threshold int) *Tracker {
	return &Tracker{
		threshold: threshold,
		records:   make(map[string]*Record),
	}
}

// RecordFailure increments the counter for key and returns the new count.
func (t *Tracker) RecordFailure(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok {
		rec = &Record{Key: key}
		t.records[key] = rec
	}
	rec.ConsecutiveCount++
	rec.LastFailureAt = time.Now().UTC()
	return rec.ConsecutiveCount
}

// RecordSuccess resets the counter for key.
func (t *Tracker) RecordSuccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, key)
}

// ThresholdExceeded reports whether key has failed at least threshold times
// in a row.
func (t *Tracker) ThresholdExceeded(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	return ok && rec.ConsecutiveCount >= t.threshold
}

// Snapshot returns a copy of all current records, for health reporting.
func (t *Tracker) Snapshot() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	return out
}

// Threshold returns the configured alert threshold.
func (t *Tracker) Threshold() int { return t.threshold }
