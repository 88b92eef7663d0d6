package metrics

import "time"

// Event names emitted by the voice pipeline.
const (
	EventCapture       = "listening_capture"
	EventSilence       = "listening_silence"
	EventTranscribe    = "stt_transcribe"
	EventCommand       = "command_interpreted"
	EventSpeak         = "tts_utterance"
	EventSpeakFailed   = "tts_utterance_failed"
	EventArticlePlay   = "article_playback"
	EventNewsFetch     = "news_fetch"
	EventChatGenerate  = "chat_generate"
	EventErrorNotified = "error_notified"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record is a shorthand for emitting a named event with tags.
func Record(o Observer, name string, value float64, tags map[string]string) {
	if o == nil {
		return
	}
	o.RecordEvent(MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}

// Since records the elapsed seconds since start.
func Since(o Observer, name string, start time.Time, tags map[string]string) {
	Record(o, name, time.Since(start).Seconds(), tags)
}

// Fanout forwards every event to each observer.
type Fanout []Observer

func (f Fanout) RecordEvent(ev MetricsEvent) {
	for _, o := range f {
		if o != nil {
			o.RecordEvent(ev)
		}
	}
}
