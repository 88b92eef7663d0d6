package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/tintuc/pkg/adapters/stt"
	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/logging"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Transcriber sends each finished clip to the prerecorded endpoint as WAV.
type Transcriber struct {
	cfg    Config
	dg     *api.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := client.NewREST(cfg.APIKey, &interfaces.ClientOptions{})
	return &Transcriber{
		cfg:    cfg,
		dg:     api.New(c),
		logger: logging.NewComponentLogger(logger, "deepgram_stt"),
	}
}

func (t *Transcriber) Name() string { return "deepgram_prerecorded" }

func (t *Transcriber) Transcribe(ctx context.Context, clip audio.Clip, opts stt.Options) (stt.Utterance, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       t.cfg.Model,
		Language:    deepgramLanguage(opts.Language),
		SmartFormat: true,
		Punctuate:   true,
		Keywords:    opts.Phrases,
	}
	res, err := t.dg.FromStream(ctx, bytes.NewReader(clip.WAV()), options)
	if err != nil {
		t.logger.Error("deepgram_transcribe_failed", "error", err)
		return stt.Utterance{}, classify(err)
	}
	text, confidence, err := extractTranscript(res)
	if err != nil {
		return stt.Utterance{}, errorsx.Wrap(err, errorsx.ReasonSTTTranscribe)
	}
	if text == "" {
		return stt.Utterance{}, stt.NoSpeech()
	}
	return stt.Utterance{Text: text, Confidence: confidence, CapturedAt: clip.CapturedAt}, nil
}

// deepgramLanguage maps BCP-47 tags to the short codes deepgram expects for
// Vietnamese and English.
func deepgramLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "vi"
	}
	if strings.HasPrefix(strings.ToLower(tag), "vi") {
		return "vi"
	}
	return tag
}

type prerecorded struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// extractTranscript normalises the SDK response through its JSON shape and
// joins the best alternative of every channel.
func extractTranscript(res any) (string, float32, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return "", 0, err
	}
	return parseTranscript(raw)
}

func parseTranscript(raw []byte) (string, float32, error) {
	var pr prerecorded
	if err := json.Unmarshal(raw, &pr); err != nil {
		return "", 0, err
	}
	var parts []string
	var confidence float64
	for _, ch := range pr.Results.Channels {
		if len(ch.Alternatives) == 0 {
			continue
		}
		alt := ch.Alternatives[0]
		if s := strings.TrimSpace(alt.Transcript); s != "" {
			parts = append(parts, s)
			if alt.Confidence > confidence {
				confidence = alt.Confidence
			}
		}
	}
	return strings.Join(parts, "\n"), float32(confidence), nil
}

func classify(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "too many requests") {
		return stt.QuotaExceeded("deepgram", msg)
	}
	return errorsx.Wrap(fmt.Errorf("deepgram: %w", err), errorsx.ReasonNetwork)
}

var _ stt.Transcriber = (*Transcriber)(nil)
