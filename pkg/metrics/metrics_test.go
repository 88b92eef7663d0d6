package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAsyncObserverDrainsOnClose(t *testing.T) {
	mem := NewMemoryObserver()
	a := NewAsyncObserver(mem, 16)
	for i := 0; i < 10; i++ {
		Record(a, EventSpeak, 0.1, nil)
	}
	a.Close()
	a.Close()
	Record(a, EventSpeak, 0.1, nil)
	if got := mem.Count(EventSpeak) + int(a.Dropped()); got != 10 {
		t.Fatalf("expected 10 delivered or dropped, got %d", got)
	}
}

func TestJSONLObserverWritesLine(t *testing.T) {
	var buf bytes.Buffer
	o := NewJSONLObserver(&buf)
	Record(o, EventCommand, 1, map[string]string{"action": "control(stop)"})
	out := buf.String()
	if !strings.Contains(out, `"name":"command_interpreted"`) || !strings.Contains(out, `"action":"control(stop)"`) {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestFanout(t *testing.T) {
	a, b := NewMemoryObserver(), NewMemoryObserver()
	Record(Fanout{a, nil, b}, EventSilence, -60, nil)
	if a.Count(EventSilence) != 1 || b.Count(EventSilence) != 1 {
		t.Fatalf("expected both observers to receive the event")
	}
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusObserver(reg)
	Record(p, EventTranscribe, 0.4, map[string]string{"outcome": "no_speech"})
	Record(p, EventCapture, -22.5, nil)
	if v := testutil.ToFloat64(p.events.WithLabelValues(EventTranscribe, "no_speech")); v != 1 {
		t.Fatalf("expected counter 1, got %v", v)
	}
	if v := testutil.ToFloat64(p.energy); v != -22.5 {
		t.Fatalf("expected gauge -22.5, got %v", v)
	}
}
