package configutil

import (
	"errors"
	"sort"
	"strings"
)

// Schema lists the keys a provider's settings map may carry. Keys compare
// case-, underscore- and hyphen-insensitively, so "api_key", "apiKey" and
// "API-KEY" are the same key.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// Validate reports required keys that are absent or blank and, unless
// AllowUnknown is set, keys the schema does not name.
func (s Schema) Validate(settings map[string]any) error {
	present := make(map[string]any, len(settings))
	original := make(map[string]string, len(settings))
	for k, v := range settings {
		present[normalizeKey(k)] = v
		original[normalizeKey(k)] = k
	}

	known := make(map[string]bool, len(s.Required)+len(s.Optional))
	var missing []string
	for _, k := range s.Required {
		nk := normalizeKey(k)
		known[nk] = true
		if v, ok := present[nk]; !ok || blank(v) {
			missing = append(missing, k)
		}
	}
	for _, k := range s.Optional {
		known[normalizeKey(k)] = true
	}

	var unknown []string
	if !s.AllowUnknown {
		for nk, k := range original {
			if !known[nk] {
				unknown = append(unknown, k)
			}
		}
	}

	var problems []string
	if len(missing) > 0 {
		sort.Strings(missing)
		problems = append(problems, "missing: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		problems = append(problems, "unknown: "+strings.Join(unknown, ", "))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

// ValidateSettings is Schema.Validate with the arguments the other way round.
func ValidateSettings(settings map[string]any, schema Schema) error {
	return schema.Validate(settings)
}

func blank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
