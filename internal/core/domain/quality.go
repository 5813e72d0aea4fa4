package domain

import "time"

// QualitySummary is one immutable quality measurement of a series over a
// check window. Rows are append-only history.
type QualitySummary struct {
	SeriesKey       SeriesKey
	CheckTime       time.Time
	WindowStart     time.Time
	WindowEnd       time.Time
	ExpectedCount   int
	ActualCount     int
	MissingCount    int
	OutOfOrderCount int
	DuplicateCount  int
	QualityScore    float64 // [0, 1]
}

// APIError is one failed fetch attempt, recorded for observability.
type APIError struct {
	Source       string
	Operation    string
	ErrorKind    string
	ErrorCode    string
	ErrorMessage string
	OccurredAt   time.Time
}
