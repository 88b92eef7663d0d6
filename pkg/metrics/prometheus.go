package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver exports pipeline events as counters and latency
// histograms. Event values are treated as seconds for the histogram.
type PrometheusObserver struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	energy  prometheus.Gauge
}

// NewPrometheusObserver registers its collectors on reg.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	p := &PrometheusObserver{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tintuc_events_total",
			Help: "Voice pipeline events by name and outcome",
		}, []string{"event", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tintuc_event_duration_seconds",
			Help:    "Duration of remote calls and playback",
			Buckets: prometheus.DefBuckets,
		}, []string{"event"}),
		energy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tintuc_capture_energy_dbfs",
			Help: "Energy of the last continuous-listening capture",
		}),
	}
	if reg != nil {
		reg.MustRegister(p.events, p.latency, p.energy)
	}
	return p
}

func (p *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	outcome := ev.Tags["outcome"]
	if outcome == "" {
		outcome = "ok"
	}
	p.events.WithLabelValues(ev.Name, outcome).Inc()
	switch ev.Name {
	case EventCapture, EventSilence:
		p.energy.Set(ev.Value)
	case EventTranscribe, EventSpeak, EventNewsFetch, EventChatGenerate:
		p.latency.WithLabelValues(ev.Name).Observe(ev.Value)
	}
}
