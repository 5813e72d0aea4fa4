// Package source defines the upstream market-data boundary.
//
// A TimeSeriesFetcher pulls raw samples for a series over a half-open time
// range. Implementations must be safe to call repeatedly with overlapping
// ranges; the engine re-fetches freely during retries and backfills.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/marketsync/internal/core/domain"
)

// TimeSeriesFetcher fetches candles for a series in [start, end).
// Returned candles are ordered by timestamp ascending.
type TimeSeriesFetcher interface {
	Fetch(ctx context.Context, key domain.SeriesKey, start, end time.Time) ([]domain.Candle, error)
}

// Fetchers routes a series to the fetcher of its upstream source.
type Fetchers map[string]TimeSeriesFetcher

// ErrUnknownSource is returned when no fetcher is registered for a source.
var ErrUnknownSource = errors.New("unknown source")

// ForSource returns the fetcher registered for the given source name.
func (f Fetchers) ForSource(name string) (TimeSeriesFetcher, error) {
	fetcher, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return fetcher, nil
}

// HTTPError carries the status code of a failed upstream request so the
// retry layer can classify it.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("upstream returned %d", e.Status)
}

// ErrMalformedResponse is returned when the upstream payload cannot be
// decoded or fails shape checks. Not retryable.
var ErrMalformedResponse = errors.New("malformed upstream response")
