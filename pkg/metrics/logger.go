package metrics

import (
	"context"
	"log/slog"
)

// LogObserver mirrors events to a logger at debug level.
type LogObserver struct {
	log *slog.Logger
}

func NewLogObserver(log *slog.Logger) *LogObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LogObserver{log: log}
}

func (o *LogObserver) RecordEvent(ev MetricsEvent) {
	if !o.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []slog.Attr{
		slog.String("event", ev.Name),
		slog.Float64("value", ev.Value),
	}
	for _, k := range sortedKeys(ev.Tags) {
		attrs = append(attrs, slog.String(k, ev.Tags[k]))
	}
	o.log.LogAttrs(context.Background(), slog.LevelDebug, "metrics", attrs...)
}
