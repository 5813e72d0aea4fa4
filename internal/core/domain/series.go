package domain

import (
	"fmt"
	"time"
)

// SeriesKey identifies one stored time series: source, symbol, data type and
// timeframe. The engine treats it as opaque; only the fetcher and store
// interpret the parts.
type SeriesKey string

// NewSeriesKey builds a key in the canonical "source:symbol:kind:timeframe" form.
func NewSeriesKey(source, symbol, kind, timeframe string) SeriesKey {
	return SeriesKey(fmt.Sprintf("%s:%s:%s:%s", source, symbol, kind, timeframe))
}

// SeriesSpec describes a registered series the engine is responsible for.
type SeriesSpec struct {
	Key      SeriesKey
	Interval time.Duration // expected sampling interval
	Source   string        // upstream source name, routes to a fetcher
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the range is non-empty.
func (r TimeRange) Valid() bool {
	return r.Start.Before(r.End)
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}
