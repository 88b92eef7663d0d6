package tintuc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/tintuc/pkg/adapters/stt"
	"github.com/harunnryd/tintuc/pkg/adapters/tts"
	"github.com/harunnryd/tintuc/pkg/configutil"
	"github.com/harunnryd/tintuc/pkg/llm"
	"github.com/harunnryd/tintuc/pkg/providers/deepgram"
	"github.com/harunnryd/tintuc/pkg/providers/elevenlabs"
	"github.com/harunnryd/tintuc/pkg/providers/gemini"
	"github.com/harunnryd/tintuc/pkg/providers/google"
	"github.com/harunnryd/tintuc/pkg/providers/mock"
)

type (
	STTFactory  func(ctx context.Context, vendor VendorConfig, logger *slog.Logger) (stt.Transcriber, error)
	TTSFactory  func(ctx context.Context, vendor VendorConfig, logger *slog.Logger) (tts.Synthesizer, error)
	ChatFactory func(ctx context.Context, vendor VendorConfig, logger *slog.Logger) (llm.Generator, error)
)

// ProviderRegistry maps vendor names from the config to constructors.
type ProviderRegistry struct {
	stt  map[string]STTFactory
	tts  map[string]TTSFactory
	chat map[string]ChatFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:  make(map[string]STTFactory),
		tts:  make(map[string]TTSFactory),
		chat: make(map[string]ChatFactory),
	}
}

// DefaultProviders registers every built-in vendor.
func DefaultProviders() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterSTT("mock", newMockSTT)
	r.RegisterSTT("google", newGoogleSTT)
	r.RegisterSTT("deepgram", newDeepgramSTT)
	r.RegisterTTS("mock", newMockTTS)
	r.RegisterTTS("google", newGoogleTTS)
	r.RegisterTTS("elevenlabs", newElevenLabsTTS)
	r.RegisterChat("mock", newMockChat)
	r.RegisterChat("gemini", newGeminiChat)
	return r
}

func (r *ProviderRegistry) RegisterSTT(name string, f STTFactory)   { r.stt[key(name)] = f }
func (r *ProviderRegistry) RegisterTTS(name string, f TTSFactory)   { r.tts[key(name)] = f }
func (r *ProviderRegistry) RegisterChat(name string, f ChatFactory) { r.chat[key(name)] = f }

func (r *ProviderRegistry) BuildSTT(ctx context.Context, vendor VendorConfig, logger *slog.Logger) (stt.Transcriber, error) {
	fn := r.stt[key(vendor.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s (have %s)", vendor.Provider, names(r.stt))
	}
	return fn(ctx, vendor, logger)
}

func (r *ProviderRegistry) BuildTTS(ctx context.Context, vendor VendorConfig, logger *slog.Logger) (tts.Synthesizer, error) {
	fn := r.tts[key(vendor.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s (have %s)", vendor.Provider, names(r.tts))
	}
	return fn(ctx, vendor, logger)
}

func (r *ProviderRegistry) BuildChat(ctx context.Context, vendor VendorConfig, logger *slog.Logger) (llm.Generator, error) {
	fn := r.chat[key(vendor.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("chat provider not registered: %s (have %s)", vendor.Provider, names(r.chat))
	}
	return fn(ctx, vendor, logger)
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func names[T any](m map[string]T) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

func decode(vendor VendorConfig, schema configutil.Schema, out any) error {
	if err := schema.Validate(vendor.Settings); err != nil {
		return fmt.Errorf("%s settings: %w", vendor.Provider, err)
	}
	if err := configutil.DecodeSettings(vendor.Settings, out); err != nil {
		return fmt.Errorf("%s settings: %w", vendor.Provider, err)
	}
	return nil
}

type mockSTTSettings struct {
	Script   []string `mapstructure:"script"`
	Fallback string   `mapstructure:"fallback"`
}

func newMockSTT(_ context.Context, vendor VendorConfig, _ *slog.Logger) (stt.Transcriber, error) {
	var s mockSTTSettings
	if err := decode(vendor, configutil.Schema{Optional: []string{"script", "fallback"}}, &s); err != nil {
		return nil, err
	}
	steps := make([]mock.STTStep, 0, len(s.Script))
	for _, text := range s.Script {
		steps = append(steps, mock.STTStep{Text: text})
	}
	return mock.NewSTT(mock.STTConfig{Steps: steps, Fallback: s.Fallback}), nil
}

type googleSTTSettings struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	Model           string `mapstructure:"model"`
	Punctuation     *bool  `mapstructure:"punctuation"`
}

func newGoogleSTT(ctx context.Context, vendor VendorConfig, logger *slog.Logger) (stt.Transcriber, error) {
	var s googleSTTSettings
	schema := configutil.Schema{Optional: []string{"credentials_file", "model", "punctuation"}}
	if err := decode(vendor, schema, &s); err != nil {
		return nil, err
	}
	return google.NewTranscriber(ctx, google.STTConfig{
		CredentialsFile: s.CredentialsFile,
		Model:           s.Model,
		Punctuation:     configutil.BoolValue(s.Punctuation, true),
	}, logger)
}

type deepgramSettings struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

func newDeepgramSTT(_ context.Context, vendor VendorConfig, logger *slog.Logger) (stt.Transcriber, error) {
	var s deepgramSettings
	schema := configutil.Schema{Required: []string{"api_key"}, Optional: []string{"model", "timeout_ms"}}
	if err := decode(vendor, schema, &s); err != nil {
		return nil, err
	}
	return deepgram.New(deepgram.Config{
		APIKey:  s.APIKey,
		Model:   s.Model,
		Timeout: time.Duration(s.TimeoutMS) * time.Millisecond,
	}, logger), nil
}

type mockTTSSettings struct {
	PerRuneMS int `mapstructure:"per_rune_ms"`
}

func newMockTTS(_ context.Context, vendor VendorConfig, _ *slog.Logger) (tts.Synthesizer, error) {
	var s mockTTSSettings
	if err := decode(vendor, configutil.Schema{Optional: []string{"per_rune_ms"}}, &s); err != nil {
		return nil, err
	}
	return mock.NewTTS(mock.TTSConfig{PerRune: time.Duration(s.PerRuneMS) * time.Millisecond}), nil
}

type googleTTSSettings struct {
	CredentialsFile string            `mapstructure:"credentials_file"`
	Voices          map[string]string `mapstructure:"voices"`
	SampleRateHz    int               `mapstructure:"sample_rate_hz"`
}

func newGoogleTTS(ctx context.Context, vendor VendorConfig, logger *slog.Logger) (tts.Synthesizer, error) {
	var s googleTTSSettings
	schema := configutil.Schema{Optional: []string{"credentials_file", "voices", "sample_rate_hz"}}
	if err := decode(vendor, schema, &s); err != nil {
		return nil, err
	}
	return google.NewSynthesizer(ctx, google.TTSConfig{
		CredentialsFile: s.CredentialsFile,
		Voices:          s.Voices,
		SampleRateHz:    s.SampleRateHz,
	}, logger)
}

type elevenLabsSettings struct {
	APIKey       string `mapstructure:"api_key"`
	VoiceID      string `mapstructure:"voice_id"`
	ModelID      string `mapstructure:"model_id"`
	OutputFormat string `mapstructure:"output_format"`
	BaseURL      string `mapstructure:"base_url"`
	TimeoutMS    int    `mapstructure:"timeout_ms"`
}

func newElevenLabsTTS(_ context.Context, vendor VendorConfig, logger *slog.Logger) (tts.Synthesizer, error) {
	var s elevenLabsSettings
	schema := configutil.Schema{
		Required: []string{"api_key", "voice_id"},
		Optional: []string{"model_id", "output_format", "base_url", "timeout_ms"},
	}
	if err := decode(vendor, schema, &s); err != nil {
		return nil, err
	}
	return elevenlabs.New(elevenlabs.Config{
		APIKey:       s.APIKey,
		VoiceID:      s.VoiceID,
		ModelID:      s.ModelID,
		OutputFormat: s.OutputFormat,
		BaseURL:      s.BaseURL,
		Timeout:      time.Duration(s.TimeoutMS) * time.Millisecond,
	}, logger), nil
}

type mockChatSettings struct {
	Replies []string `mapstructure:"replies"`
}

func newMockChat(_ context.Context, vendor VendorConfig, _ *slog.Logger) (llm.Generator, error) {
	var s mockChatSettings
	if err := decode(vendor, configutil.Schema{Optional: []string{"replies"}}, &s); err != nil {
		return nil, err
	}
	return mock.NewGenerator(s.Replies...), nil
}

type geminiSettings struct {
	APIKey            string `mapstructure:"api_key"`
	Model             string `mapstructure:"model"`
	BaseURL           string `mapstructure:"base_url"`
	SystemInstruction string `mapstructure:"system_instruction"`
}

func newGeminiChat(ctx context.Context, vendor VendorConfig, logger *slog.Logger) (llm.Generator, error) {
	var s geminiSettings
	schema := configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "base_url", "system_instruction"},
	}
	if err := decode(vendor, schema, &s); err != nil {
		return nil, err
	}
	return gemini.New(ctx, gemini.Config{
		APIKey:            s.APIKey,
		Model:             s.Model,
		BaseURL:           s.BaseURL,
		SystemInstruction: s.SystemInstruction,
	}, logger)
}
