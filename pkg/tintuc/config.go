package tintuc

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/harunnryd/tintuc/pkg/command"
	"github.com/harunnryd/tintuc/pkg/configutil"
	"github.com/spf13/viper"
)

type Config struct {
	Environment          string              `mapstructure:"environment"`
	LogLevel             string              `mapstructure:"log_level"`
	LogFormat            string              `mapstructure:"log_format"`
	Language             string              `mapstructure:"language"`
	AlternativeLanguages []string            `mapstructure:"alternative_languages"`
	Vendors              VendorsConfig       `mapstructure:"vendors"`
	News                 NewsConfig          `mapstructure:"news"`
	Listening            ListeningConfig     `mapstructure:"listening"`
	Reader               ReaderConfig        `mapstructure:"reader"`
	Playback             PlaybackConfig      `mapstructure:"playback"`
	Interpreter          InterpreterConfig   `mapstructure:"interpreter"`
	Audio                AudioConfig         `mapstructure:"audio"`
	Chat                 ChatConfig          `mapstructure:"chat"`
	Resilience           ResilienceConfig    `mapstructure:"resilience"`
	Observability        ObservabilityConfig `mapstructure:"observability"`
	Privacy              PrivacyConfig       `mapstructure:"privacy"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT  VendorConfig `mapstructure:"stt"`
	TTS  VendorConfig `mapstructure:"tts"`
	Chat VendorConfig `mapstructure:"chat"`
}

type NewsConfig struct {
	FeedURL          string `mapstructure:"feed_url"`
	Limit            int    `mapstructure:"limit"`
	ResolvePageAudio bool   `mapstructure:"resolve_page_audio"`
	TimeoutMS        int    `mapstructure:"timeout_ms"`
	Retries          int    `mapstructure:"retries"`
}

type ListeningConfig struct {
	CaptureWindowMS   int     `mapstructure:"capture_window_ms"`
	EnergyThresholdDB float64 `mapstructure:"energy_threshold_db"`
	RestartDelayMS    int     `mapstructure:"restart_delay_ms"`
	// VADMode enables the WebRTC gate when >= 0.
	VADMode     int     `mapstructure:"vad_mode"`
	VADMinRatio float64 `mapstructure:"vad_min_ratio"`
}

type ReaderConfig struct {
	SettleDelayMS          int  `mapstructure:"settle_delay_ms"`
	ListenDuringPlaybackMS int  `mapstructure:"listen_during_playback_ms"`
	HeadlineCount          int  `mapstructure:"headline_count"`
	FuzzyWhileListening    bool `mapstructure:"fuzzy_while_listening"`
}

type PlaybackConfig struct {
	Speed float64 `mapstructure:"speed"`
	Voice string  `mapstructure:"voice"`
}

type InterpreterConfig struct {
	SimilarityWeight float64             `mapstructure:"similarity_weight"`
	KeywordBonus     float64             `mapstructure:"keyword_bonus"`
	WordBonus        float64             `mapstructure:"word_bonus"`
	MinScore         float64             `mapstructure:"min_score"`
	MinWordLen       int                 `mapstructure:"min_word_len"`
	Keywords         map[string][]string `mapstructure:"keywords"`
}

type AudioConfig struct {
	SampleRate       int    `mapstructure:"sample_rate"`
	Channels         int    `mapstructure:"channels"`
	FramesPerBuffer  int    `mapstructure:"frames_per_buffer"`
	Device           string `mapstructure:"device"`
	OutputSampleRate int    `mapstructure:"output_sample_rate"`
	// Mock replaces the microphone and loudspeaker with in-memory fakes.
	Mock bool `mapstructure:"mock"`
}

type ChatConfig struct {
	Database     string `mapstructure:"database"`
	HistoryTurns int    `mapstructure:"history_turns"`
}

type ResilienceConfig struct {
	BreakerThreshold  int `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int `mapstructure:"breaker_cooldown_ms"`
}

type ObservabilityConfig struct {
	MetricsAddr   string `mapstructure:"metrics_addr"`
	ArtifactsDir  string `mapstructure:"artifacts_dir"`
	RecordAudio   bool   `mapstructure:"record_audio"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// LoadConfig reads a YAML file. An empty path loads defaults only, so the
// mock stack runs without a config file.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("language", "vi-VN")
	v.SetDefault("alternative_languages", []string{"en-US"})
	v.SetDefault("vendors.stt.provider", "mock")
	v.SetDefault("vendors.tts.provider", "mock")
	v.SetDefault("vendors.chat.provider", "mock")
	v.SetDefault("news.feed_url", "https://tuoitre.vn/rss/tin-moi-nhat.rss")
	v.SetDefault("news.limit", 5)
	v.SetDefault("news.resolve_page_audio", false)
	v.SetDefault("news.timeout_ms", 15000)
	v.SetDefault("news.retries", 2)
	v.SetDefault("listening.capture_window_ms", 3000)
	v.SetDefault("listening.energy_threshold_db", -40.0)
	v.SetDefault("listening.restart_delay_ms", 1000)
	v.SetDefault("listening.vad_mode", -1)
	v.SetDefault("listening.vad_min_ratio", 0.1)
	v.SetDefault("reader.settle_delay_ms", 500)
	v.SetDefault("reader.listen_during_playback_ms", 1000)
	v.SetDefault("reader.headline_count", 5)
	v.SetDefault("reader.fuzzy_while_listening", false)
	v.SetDefault("playback.speed", 1.0)
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.frames_per_buffer", 512)
	v.SetDefault("audio.output_sample_rate", 44100)
	v.SetDefault("audio.mock", false)
	v.SetDefault("chat.database", "data/chat.db")
	v.SetDefault("chat.history_turns", 0)
	v.SetDefault("resilience.breaker_threshold", 3)
	v.SetDefault("resilience.breaker_cooldown_ms", 30000)
	v.SetDefault("observability.metrics_addr", "")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.record_audio", false)
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("privacy.redact_pii", true)
}

func (c *Config) Validate() error {
	if err := configutil.RequireString(c.Language, "language"); err != nil {
		return err
	}
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("vendors.tts.provider is required")
	}
	if strings.TrimSpace(c.Vendors.Chat.Provider) == "" {
		return fmt.Errorf("vendors.chat.provider is required")
	}
	if c.News.Limit <= 0 {
		return fmt.Errorf("news.limit must be positive")
	}
	if c.Listening.CaptureWindowMS <= 0 {
		return fmt.Errorf("listening.capture_window_ms must be positive")
	}
	if c.Listening.EnergyThresholdDB > 0 {
		return fmt.Errorf("listening.energy_threshold_db must be <= 0 dBFS")
	}
	if c.Listening.VADMode > 3 {
		return fmt.Errorf("listening.vad_mode must be -1..3")
	}
	if c.Playback.Speed < 0 {
		return fmt.Errorf("playback.speed must not be negative")
	}
	return nil
}

// Tuning maps the interpreter section onto command.Tuning. Zero values keep
// the defaults.
func (c Config) Tuning() command.Tuning {
	t := command.DefaultTuning()
	ic := c.Interpreter
	if ic.SimilarityWeight > 0 {
		t.SimilarityWeight = ic.SimilarityWeight
	}
	if ic.KeywordBonus > 0 {
		t.KeywordBonus = ic.KeywordBonus
	}
	if ic.WordBonus > 0 {
		t.WordBonus = ic.WordBonus
	}
	if ic.MinScore > 0 {
		t.MinScore = ic.MinScore
	}
	if ic.MinWordLen > 0 {
		t.MinWordLen = ic.MinWordLen
	}
	for k, variants := range ic.Keywords {
		t.TitleKeywords[strings.ToLower(k)] = variants
	}
	return t
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.Chat.Settings = expandSettings(cfg.Vendors.Chat.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			expandValue(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
