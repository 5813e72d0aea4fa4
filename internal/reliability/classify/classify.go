// Package classify collapses heterogeneous upstream failures into one small,
// closed taxonomy so retry policy stays source-agnostic.
package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/vietddude/marketsync/internal/infra/source"
	"github.com/vietddude/marketsync/internal/infra/storage"
)

// ErrorKind is the closed classification of a failure.
type ErrorKind string

const (
	KindNetwork            ErrorKind = "network"
	KindRateLimit          ErrorKind = "rate_limit"
	KindTimeout            ErrorKind = "timeout"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindRemoteRejected     ErrorKind = "remote_rejected"
	KindStorage            ErrorKind = "storage"
	KindValidation         ErrorKind = "validation"
	KindUnknown            ErrorKind = "unknown"
)

// Retryable reports whether a failure of this kind is worth retrying.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindRateLimit, KindTimeout, KindServiceUnavailable:
		return true
	}
	return false
}

// Classify maps an arbitrary failure into an ErrorKind. Pure, nil-safe,
// never panics.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	// Typed errors first.
	var httpErr *source.HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.Status)
	}
	if errors.Is(err, storage.ErrStorage) {
		return KindStorage
	}
	if errors.Is(err, source.ErrMalformedResponse) {
		return KindValidation
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	// String fallbacks for sources that only surface opaque messages.
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "429"), strings.Contains(s, "too many requests"),
		strings.Contains(s, "rate limit"), strings.Contains(s, "quota"):
		return KindRateLimit
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(s, "connection refused"), strings.Contains(s, "connection reset"),
		strings.Contains(s, "no such host"), strings.Contains(s, "broken pipe"),
		strings.Contains(s, "eof"):
		return KindNetwork
	case strings.Contains(s, "503"), strings.Contains(s, "service unavailable"),
		strings.Contains(s, "bad gateway"):
		return KindServiceUnavailable
	case strings.Contains(s, "unauthorized"), strings.Contains(s, "forbidden"),
		strings.Contains(s, "bad request"):
		return KindRemoteRejected
	}

	return KindUnknown
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusServiceUnavailable, status == http.StatusBadGateway:
		return KindServiceUnavailable
	case status >= 500:
		return KindServiceUnavailable
	case status >= 400:
		return KindRemoteRejected
	}
	return KindUnknown
}
