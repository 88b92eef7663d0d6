package google

import (
	"context"
	"log/slog"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/harunnryd/tintuc/pkg/adapters/stt"
	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/logging"
	"github.com/harunnryd/tintuc/pkg/redact"
	"google.golang.org/api/option"
)

type STTConfig struct {
	CredentialsFile string
	Model           string
	// Punctuation enables automatic punctuation.
	Punctuation bool
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Transcriber uses synchronous Recognize with LINEAR16 audio, a primary
// language plus alternatives and optional phrase hints.
type Transcriber struct {
	cfg       STTConfig
	recognize recognizeFunc
	close     func() error
	logger    *slog.Logger
}

func NewTranscriber(ctx context.Context, cfg STTConfig, logger *slog.Logger) (*Transcriber, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonSTTTranscribe)
	}
	t := newTranscriber(cfg, func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return client.Recognize(ctx, req)
	}, logger)
	t.close = client.Close
	return t, nil
}

func newTranscriber(cfg STTConfig, fn recognizeFunc, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		cfg:       cfg,
		recognize: fn,
		close:     func() error { return nil },
		logger:    logging.NewComponentLogger(logger, "google_stt"),
	}
}

func (t *Transcriber) Name() string { return "google_speech" }

func (t *Transcriber) Close() error { return t.close() }

func (t *Transcriber) Transcribe(ctx context.Context, clip audio.Clip, opts stt.Options) (stt.Utterance, error) {
	resp, err := t.recognize(ctx, t.request(clip, opts))
	if err != nil {
		t.logger.Error("google_stt_failed", "error", err)
		return stt.Utterance{}, classify("google_speech", err, errorsx.ReasonSTTTranscribe)
	}
	var parts []string
	var confidence float32
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if s := strings.TrimSpace(alts[0].GetTranscript()); s != "" {
			parts = append(parts, s)
			if c := alts[0].GetConfidence(); c > confidence {
				confidence = c
			}
		}
	}
	text := strings.Join(parts, "\n")
	if text == "" {
		return stt.Utterance{}, stt.NoSpeech()
	}
	t.logger.Debug("google_stt_transcript", "text", redact.Text(text), "confidence", confidence)
	return stt.Utterance{Text: text, Confidence: confidence, CapturedAt: clip.CapturedAt}, nil
}

func (t *Transcriber) request(clip audio.Clip, opts stt.Options) *speechpb.RecognizeRequest {
	lang := opts.Language
	if lang == "" {
		lang = "vi-VN"
	}
	channels := clip.Channels
	if channels <= 0 {
		channels = 1
	}
	cfg := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            int32(clip.SampleRate),
		AudioChannelCount:          int32(channels),
		LanguageCode:               lang,
		AlternativeLanguageCodes:   opts.AlternativeLanguages,
		EnableAutomaticPunctuation: t.cfg.Punctuation,
		Model:                      t.cfg.Model,
	}
	if len(opts.Phrases) > 0 {
		cfg.SpeechContexts = []*speechpb.SpeechContext{{Phrases: opts.Phrases}}
	}
	return &speechpb.RecognizeRequest{
		Config: cfg,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: clip.Data}},
	}
}

var _ stt.Transcriber = (*Transcriber)(nil)
