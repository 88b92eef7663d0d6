package google

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/harunnryd/tintuc/pkg/adapters/tts"
	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/logging"
	"google.golang.org/api/option"
)

type TTSConfig struct {
	CredentialsFile string
	// Voices maps a language code to a voice name.
	Voices       map[string]string
	SampleRateHz int
}

var defaultVoices = map[string]string{
	"vi-VN": "vi-VN-Standard-A",
	"en-US": "en-US-Standard-C",
}

type (
	synthesizeFunc func(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	listVoicesFunc func(ctx context.Context, req *texttospeechpb.ListVoicesRequest) (*texttospeechpb.ListVoicesResponse, error)
)

// Synthesizer renders MP3 with a female voice per language.
type Synthesizer struct {
	cfg        TTSConfig
	synthesize synthesizeFunc
	listVoices listVoicesFunc
	close      func() error
	logger     *slog.Logger
}

func NewSynthesizer(ctx context.Context, cfg TTSConfig, logger *slog.Logger) (*Synthesizer, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSSynthesize)
	}
	s := newSynthesizer(cfg,
		func(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
			return client.SynthesizeSpeech(ctx, req)
		},
		func(ctx context.Context, req *texttospeechpb.ListVoicesRequest) (*texttospeechpb.ListVoicesResponse, error) {
			return client.ListVoices(ctx, req)
		}, logger)
	s.close = client.Close
	return s, nil
}

func newSynthesizer(cfg TTSConfig, synth synthesizeFunc, list listVoicesFunc, logger *slog.Logger) *Synthesizer {
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = 24000
	}
	voices := make(map[string]string, len(defaultVoices)+len(cfg.Voices))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for k, v := range cfg.Voices {
		voices[k] = v
	}
	cfg.Voices = voices
	return &Synthesizer{
		cfg:        cfg,
		synthesize: synth,
		listVoices: list,
		close:      func() error { return nil },
		logger:     logging.NewComponentLogger(logger, "google_tts"),
	}
}

func (s *Synthesizer) Name() string { return "google_tts" }

func (s *Synthesizer) Close() error { return s.close() }

func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (audio.Source, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return audio.Source{}, errorsx.Wrap(errors.New("empty text"), errorsx.ReasonTTSSynthesize)
	}
	resp, err := s.synthesize(ctx, s.request(text, req))
	if err != nil {
		s.logger.Error("google_tts_failed", "error", err)
		return audio.Source{}, classify("google_tts", err, errorsx.ReasonTTSSynthesize)
	}
	if len(resp.GetAudioContent()) == 0 {
		return audio.Source{}, errorsx.Wrap(errors.New("google_tts: empty audio"), errorsx.ReasonTTSSynthesize)
	}
	return audio.Source{Data: resp.GetAudioContent(), Format: audio.FormatMP3}, nil
}

func (s *Synthesizer) request(text string, req tts.Request) *texttospeechpb.SynthesizeSpeechRequest {
	lang := req.Language
	if lang == "" {
		lang = "vi-VN"
	}
	voice := req.Voice
	if voice == "" {
		voice = s.cfg.Voices[lang]
	}
	rate := req.Speed
	if rate <= 0 {
		rate = 1.0
	}
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{InputSource: &texttospeechpb.SynthesisInput_Text{Text: text}},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         voice,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_FEMALE,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:    rate,
			SampleRateHertz: int32(s.cfg.SampleRateHz),
		},
	}
}

// ListVoices returns the voices available for language ("" lists all).
func (s *Synthesizer) ListVoices(ctx context.Context, language string) ([]tts.Voice, error) {
	resp, err := s.listVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: language})
	if err != nil {
		return nil, classify("google_tts", err, errorsx.ReasonTTSSynthesize)
	}
	out := make([]tts.Voice, 0, len(resp.GetVoices()))
	for _, v := range resp.GetVoices() {
		out = append(out, tts.Voice{
			Name:          v.GetName(),
			LanguageCodes: v.GetLanguageCodes(),
			Gender:        v.GetSsmlGender().String(),
			SampleRateHz:  int(v.GetNaturalSampleRateHertz()),
		})
	}
	return out, nil
}

var (
	_ tts.Synthesizer = (*Synthesizer)(nil)
	_ tts.VoiceLister = (*Synthesizer)(nil)
)
