package domain

import "time"

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// BackfillTask represents one unit of "fetch and store the data for this gap".
// A task is uniquely addressed by (SeriesKey, RangeStart, RangeEnd) so that
// re-detecting the same gap never creates a duplicate row.
type BackfillTask struct {
	ID              string
	SeriesKey       SeriesKey
	RangeStart      time.Time
	RangeEnd        time.Time
	Status          TaskStatus
	Priority        int // lower runs first
	ExpectedRecords *int
	ActualRecords   *int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Range returns the half-open interval the task covers.
func (t *BackfillTask) Range() TimeRange {
	return TimeRange{Start: t.RangeStart, End: t.RangeEnd}
}

// Task priorities. Recent gaps jump the queue; historical scans trail.
const (
	PriorityRecent     = 10
	PriorityHistorical = 50
	PriorityManual     = 5
)
