package tintuc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Language != "vi-VN" || len(cfg.AlternativeLanguages) != 1 || cfg.AlternativeLanguages[0] != "en-US" {
		t.Fatalf("unexpected languages: %q %v", cfg.Language, cfg.AlternativeLanguages)
	}
	if cfg.Listening.CaptureWindowMS != 3000 || cfg.Listening.EnergyThresholdDB != -40 || cfg.Listening.RestartDelayMS != 1000 {
		t.Fatalf("unexpected listening defaults: %+v", cfg.Listening)
	}
	if cfg.Listening.VADMode != -1 {
		t.Fatalf("expected vad disabled by default")
	}
	if cfg.News.Limit != 5 || cfg.Reader.HeadlineCount != 5 {
		t.Fatalf("unexpected limits: %+v %+v", cfg.News, cfg.Reader)
	}
	if cfg.Vendors.STT.Provider != "mock" || !cfg.Privacy.RedactPII {
		t.Fatalf("unexpected vendor/privacy defaults")
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("TINTUC_TEST_KEY", "secret-123")
	t.Setenv("TINTUC_TEST_FEED", "https://example.test/rss")
	path := writeConfig(t, `
language: en-US
news:
  feed_url: ${TINTUC_TEST_FEED}
vendors:
  chat:
    provider: gemini
    settings:
      api_key: ${TINTUC_TEST_KEY}
      model: gemini-2.0-flash
interpreter:
  min_score: 4
  keywords:
    Hà Nội: ["hà nội", "ha noi"]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.News.FeedURL != "https://example.test/rss" {
		t.Fatalf("feed url not expanded: %q", cfg.News.FeedURL)
	}
	if cfg.Vendors.Chat.Settings["api_key"] != "secret-123" {
		t.Fatalf("settings not expanded: %+v", cfg.Vendors.Chat.Settings)
	}
	tuning := cfg.Tuning()
	if tuning.MinScore != 4 || tuning.SimilarityWeight != 10 {
		t.Fatalf("unexpected tuning: %+v", tuning)
	}
	if len(tuning.TitleKeywords["hà nội"]) != 2 {
		t.Fatalf("expected custom keyword, got %v", tuning.TitleKeywords)
	}
	if _, ok := tuning.TitleKeywords["trump"]; !ok {
		t.Fatalf("expected default keywords kept")
	}
}

func TestLoadConfigValidates(t *testing.T) {
	cases := map[string]string{
		"energy":  "listening:\n  energy_threshold_db: 3\n",
		"vad":     "listening:\n  vad_mode: 7\n",
		"vendor":  "vendors:\n  stt:\n    provider: \"\"\n",
		"window":  "listening:\n  capture_window_ms: 0\n",
		"speed":   "playback:\n  speed: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			if err == nil || !strings.Contains(err.Error(), "validate config") {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}
