package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/marketsync/internal/core/domain"
)

const requestsKey = "marketsync:backfill_requests"

// BackfillRequest is a manual backfill pushed by ops tooling.
type BackfillRequest struct {
	SeriesKey  string    `json:"series_key"`
	RangeStart time.Time `json:"range_start"`
	RangeEnd   time.Time `json:"range_end"`
}

// Range returns the request's half-open interval.
func (r BackfillRequest) Range() domain.TimeRange {
	return domain.TimeRange{Start: r.RangeStart, End: r.RangeEnd}
}

// PushRequest enqueues a manual backfill request.
func (c *Client) PushRequest(ctx context.Context, req BackfillRequest) error {
	if !req.Range().Valid() {
		return fmt.Errorf("invalid request range %s", req.Range())
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if err := c.rdb.RPush(ctx, requestsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push request: %w", err)
	}
	return nil
}

// PopRequest blocks up to timeout for the next request. Returns nil when the
// queue stays empty.
func (c *Client) PopRequest(ctx context.Context, timeout time.Duration) (*BackfillRequest, error) {
	vals, err := c.rdb.BLPop(ctx, timeout, requestsKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop request: %w", err)
	}
	// BLPop returns [key, value].
	if len(vals) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply of length %d", len(vals))
	}

	var req BackfillRequest
	if err := json.Unmarshal([]byte(vals[1]), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	if !req.Range().Valid() {
		return nil, fmt.Errorf("invalid request range %s", req.Range())
	}
	return &req, nil
}

// RequestCount returns the number of queued manual requests.
func (c *Client) RequestCount(ctx context.Context) (int64, error) {
	return c.rdb.LLen(ctx, requestsKey).Result()
}
