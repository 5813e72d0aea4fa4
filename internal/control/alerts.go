package control

import (
	"context"
	"log/slog"
)

// Alert is an actionable operator signal: a stuck source or a silently
// degrading series.
type Alert struct {
	SeriesKey string
	Reason    string
	Details   map[string]any
}

// AlertSink delivers alerts. Delivery (pager, chat, email) is an external
// concern; the engine only raises the signal.
type AlertSink interface {
	Notify(ctx context.Context, alert Alert)
}

// LogSink is the default sink: alerts land in the structured log where an
// external forwarder picks them up.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a log-backed alert sink.
func NewLogSink() *LogSink {
	return &LogSink{log: slog.Default().With("component", "alerts")}
}

func (s *LogSink) Notify(ctx context.Context, alert Alert) {
	attrs := []any{"series", alert.SeriesKey, "reason", alert.Reason}
	for k, v := range alert.Details {
		attrs = append(attrs, k, v)
	}
	s.log.Warn("ALERT", attrs...)
}
