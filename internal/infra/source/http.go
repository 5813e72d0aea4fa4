package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/marketsync/internal/core/domain"
)

// HTTPSource fetches candles from a REST klines endpoint.
// One long-lived instance per upstream, constructed at startup and injected.
type HTTPSource struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

// NewHTTPSource creates an HTTP-based candle source.
func NewHTTPSource(name, endpoint string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		name:     name,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name returns the source name used for routing and error logs.
func (s *HTTPSource) Name() string { return s.name }

// candlePayload is the wire shape of one sample.
type candlePayload struct {
	Timestamp int64  `json:"ts"` // unix milliseconds, bucket open time
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
}

// Fetch pulls candles for [start, end). Overlapping re-fetches are safe; the
// endpoint is a pure read.
func (s *HTTPSource) Fetch(
	ctx context.Context,
	key domain.SeriesKey,
	start, end time.Time,
) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("series", string(key))
	q.Set("from", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("to", strconv.FormatInt(end.UnixMilli(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Cap the body so a huge error page doesn't end up in logs.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Data []candlePayload `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	candles := make([]domain.Candle, 0, len(payload.Data))
	for _, p := range payload.Data {
		c, err := p.toCandle()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		ts := c.Timestamp
		// Upstreams sometimes return an inclusive tail sample; keep the
		// contract half-open.
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		candles = append(candles, c)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	return candles, nil
}

func (p candlePayload) toCandle() (domain.Candle, error) {
	var c domain.Candle
	var err error

	c.Timestamp = time.UnixMilli(p.Timestamp).UTC()
	if c.Open, err = decimal.NewFromString(p.Open); err != nil {
		return c, fmt.Errorf("open %q: %v", p.Open, err)
	}
	if c.High, err = decimal.NewFromString(p.High); err != nil {
		return c, fmt.Errorf("high %q: %v", p.High, err)
	}
	if c.Low, err = decimal.NewFromString(p.Low); err != nil {
		return c, fmt.Errorf("low %q: %v", p.Low, err)
	}
	if c.Close, err = decimal.NewFromString(p.Close); err != nil {
		return c, fmt.Errorf("close %q: %v", p.Close, err)
	}
	if c.Volume, err = decimal.NewFromString(p.Volume); err != nil {
		return c, fmt.Errorf("volume %q: %v", p.Volume, err)
	}
	return c, nil
}
