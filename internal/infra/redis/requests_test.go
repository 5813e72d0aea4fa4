package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Client{rdb: rdb}
}

func TestPushPopRequest_RoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	req := BackfillRequest{
		SeriesKey:  "binance:BTCUSDT:candles:1m",
		RangeStart: start,
		RangeEnd:   start.Add(time.Hour),
	}
	require.NoError(t, c.PushRequest(ctx, req))

	count, err := c.RequestCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := c.PopRequest(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, req.SeriesKey, got.SeriesKey)
	assert.True(t, got.RangeStart.Equal(req.RangeStart))
	assert.True(t, got.RangeEnd.Equal(req.RangeEnd))

	count, err = c.RequestCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestPushRequest_RejectsInvalidRange(t *testing.T) {
	c := newTestClient(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := c.PushRequest(context.Background(), BackfillRequest{
		SeriesKey:  "binance:BTCUSDT:candles:1m",
		RangeStart: start,
		RangeEnd:   start, // empty range
	})
	assert.Error(t, err)
}

func TestPopRequest_EmptyQueueReturnsNil(t *testing.T) {
	c := newTestClient(t)

	got, err := c.PopRequest(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPopRequest_FIFOOrder(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, key := range []string{"a:X:candles:1m", "b:Y:candles:1m"} {
		require.NoError(t, c.PushRequest(ctx, BackfillRequest{
			SeriesKey:  key,
			RangeStart: start,
			RangeEnd:   start.Add(time.Minute),
		}))
	}

	first, err := c.PopRequest(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "a:X:candles:1m", first.SeriesKey)

	second, err := c.PopRequest(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "b:Y:candles:1m", second.SeriesKey)
}
