package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/tintuc/pkg/adapters/tts"
	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/logging"
	"github.com/harunnryd/tintuc/pkg/resilience"
)

const defaultBaseURL = "wss://api.elevenlabs.io/v1/text-to-speech/"

type Config struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	// BaseURL overrides the websocket endpoint prefix (tests).
	BaseURL string
	Timeout time.Duration
}

// Synthesizer renders each request over a short-lived stream-input
// websocket and collects the MP3 chunks until the final message.
type Synthesizer struct {
	cfg    Config
	dialer websocket.Dialer
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Synthesizer {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Synthesizer{
		cfg:    cfg,
		dialer: websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second},
		logger: logging.NewComponentLogger(logger, "elevenlabs_tts"),
	}
}

func (s *Synthesizer) Name() string { return "elevenlabs_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (audio.Source, error) {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return audio.Source{}, errors.New("missing elevenlabs config")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return audio.Source{}, errorsx.Wrap(errors.New("empty text"), errorsx.ReasonTTSSynthesize)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	voice := s.cfg.VoiceID
	if req.Voice != "" {
		voice = req.Voice
	}
	u := s.buildURL(voice)
	conn, resp, err := s.dialer.DialContext(ctx, u, http.Header{"xi-api-key": []string{s.cfg.APIKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			s.logger.Error("elevenlabs_rate_limited", "status", resp.Status)
			return audio.Source{}, errorsx.Wrap(resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}, errorsx.ReasonQuotaExceeded)
		}
		return audio.Source{}, errorsx.Wrap(fmt.Errorf("elevenlabs dial: %w", err), errorsx.ReasonNetwork)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	settings := map[string]any{
		"stability":        0.5,
		"similarity_boost": 0.8,
	}
	if req.Speed > 0 {
		settings["speed"] = req.Speed
	}
	if err := writeJSON(conn, map[string]any{"text": " ", "voice_settings": settings}); err != nil {
		return audio.Source{}, errorsx.Wrap(err, errorsx.ReasonNetwork)
	}
	if err := writeJSON(conn, map[string]any{"text": text + " ", "try_trigger_generation": true}); err != nil {
		return audio.Source{}, errorsx.Wrap(err, errorsx.ReasonNetwork)
	}
	if err := writeJSON(conn, map[string]any{"text": ""}); err != nil {
		return audio.Source{}, errorsx.Wrap(err, errorsx.ReasonNetwork)
	}

	var buf bytes.Buffer
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return audio.Source{}, ctx.Err()
			}
			if buf.Len() > 0 && websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return audio.Source{}, errorsx.Wrap(fmt.Errorf("elevenlabs read: %w", err), errorsx.ReasonNetwork)
		}
		chunk, final, err := decodeMessage(data)
		if err != nil {
			s.logger.Warn("elevenlabs_message_invalid", "error", err)
			continue
		}
		buf.Write(chunk)
		if final {
			break
		}
	}
	s.logger.Debug("elevenlabs_synthesized", "bytes", buf.Len())
	if buf.Len() == 0 {
		return audio.Source{}, errorsx.Wrap(errors.New("elevenlabs returned no audio"), errorsx.ReasonTTSSynthesize)
	}
	return audio.Source{Data: buf.Bytes(), Format: audio.FormatMP3}, nil
}

func (s *Synthesizer) buildURL(voice string) string {
	q := url.Values{}
	q.Set("model_id", s.cfg.ModelID)
	q.Set("output_format", s.cfg.OutputFormat)
	return strings.TrimSuffix(s.cfg.BaseURL, "/") + "/" + url.PathEscape(voice) + "/stream-input?" + q.Encode()
}

type message struct {
	Audio   *string `json:"audio"`
	IsFinal *bool   `json:"isFinal"`
	Message string  `json:"message"`
	Error   string  `json:"error"`
}

func decodeMessage(data []byte) ([]byte, bool, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, err
	}
	if msg.Error != "" {
		return nil, true, fmt.Errorf("elevenlabs: %s %s", msg.Error, msg.Message)
	}
	final := msg.IsFinal != nil && *msg.IsFinal
	if msg.Audio == nil || *msg.Audio == "" {
		return nil, final, nil
	}
	raw, err := base64.StdEncoding.DecodeString(*msg.Audio)
	if err != nil {
		return nil, final, err
	}
	return raw, final, nil
}

func writeJSON(conn *websocket.Conn, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
