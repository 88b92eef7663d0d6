package configutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DecodeSettings decodes a provider settings map into out. Values are weakly
// typed so numbers and booleans may arrive as strings from env expansion;
// a comma-separated string fills a []string field and "30s" fills a
// time.Duration.
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return fmt.Errorf("settings decoder: %w", err)
	}
	return decoder.Decode(input)
}

func RequireString(value, path string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", path)
	}
	return nil
}

// BoolValue lets an omitted setting default to true.
func BoolValue(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func normalizeKey(value string) string {
	return strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(value))
}

// Millis converts a millisecond config value into a duration. Negative values
// fall back; zero is kept so tests can disable delays.
func Millis(ms int, fallback time.Duration) time.Duration {
	if ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
