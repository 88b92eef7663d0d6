package metrics

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// JSONLObserver appends each event as one JSON line, tags and fields flattened.
type JSONLObserver struct {
	out  *slog.Logger
	file *os.File
}

func NewJSONLObserver(w io.Writer) *JSONLObserver {
	if w == nil {
		w = io.Discard
	}
	return &JSONLObserver{out: slog.New(slog.NewJSONHandler(w, nil))}
}

// OpenJSONLFile opens (or creates) dir/metrics.jsonl for appending.
func OpenJSONLFile(dir string) (*JSONLObserver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "metrics.jsonl"), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	o := NewJSONLObserver(f)
	o.file = f
	return o, nil
}

func (o *JSONLObserver) RecordEvent(ev MetricsEvent) {
	attrs := make([]slog.Attr, 0, 3+len(ev.Tags)+len(ev.Fields))
	attrs = append(attrs,
		slog.String("name", ev.Name),
		slog.Time("time", ev.Time),
		slog.Float64("value", ev.Value),
	)
	for _, k := range sortedKeys(ev.Tags) {
		attrs = append(attrs, slog.String(k, ev.Tags[k]))
	}
	for _, k := range sortedKeys(ev.Fields) {
		attrs = append(attrs, slog.Any(k, ev.Fields[k]))
	}
	o.out.LogAttrs(context.Background(), slog.LevelInfo, "metrics", attrs...)
}

func (o *JSONLObserver) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
