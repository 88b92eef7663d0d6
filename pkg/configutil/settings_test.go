package configutil

import (
	"strings"
	"testing"
	"time"
)

type googleSettings struct {
	CredentialsFile string  `mapstructure:"credentials_file"`
	Voice           string  `mapstructure:"voice"`
	SpeakingRate    float64 `mapstructure:"speaking_rate"`
}

func TestValidateSettings(t *testing.T) {
	schema := Schema{Required: []string{"api_key"}, Optional: []string{"model"}}
	if err := ValidateSettings(map[string]any{"API-Key": "k", "model": "m"}, schema); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidateSettings(map[string]any{"voice": "x"}, schema)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "missing: api_key") || !strings.Contains(err.Error(), "unknown: voice") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestDecodeSettingsNormalizesKeys(t *testing.T) {
	var out googleSettings
	err := DecodeSettings(map[string]any{
		"credentialsFile": "/tmp/key.json",
		"VOICE":           "vi-VN-Standard-A",
		"speaking-rate":   "0.9",
	}, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.CredentialsFile != "/tmp/key.json" || out.Voice != "vi-VN-Standard-A" || out.SpeakingRate != 0.9 {
		t.Fatalf("unexpected decode: %+v", out)
	}
}

func TestMillis(t *testing.T) {
	if Millis(-1, time.Second) != time.Second {
		t.Fatalf("expected fallback")
	}
	if Millis(0, time.Second) != 0 {
		t.Fatalf("expected zero to be kept")
	}
	if Millis(1500, 0) != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s")
	}
}

func TestDecodeSettingsHooks(t *testing.T) {
	var out struct {
		Script  []string      `mapstructure:"script"`
		Timeout time.Duration `mapstructure:"timeout"`
	}
	err := DecodeSettings(map[string]any{"script": "tin số 1,dừng", "timeout": "1500ms"}, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Script) != 2 || out.Script[1] != "dừng" || out.Timeout != 1500*time.Millisecond {
		t.Fatalf("unexpected decode: %+v", out)
	}
}

func TestSchemaAllowUnknown(t *testing.T) {
	s := Schema{Required: []string{"api_key"}, AllowUnknown: true}
	if err := s.Validate(map[string]any{"apiKey": "k", "extra": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Validate(map[string]any{"api_key": "  "}); err == nil {
		t.Fatalf("expected blank required key to fail")
	}
}
