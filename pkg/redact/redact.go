package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe  = regexp.MustCompile(`\b\+?\d[\d\s\-.]{7,}\d\b`)
	apiKeyRe = regexp.MustCompile(`\b(AIza[0-9A-Za-z_\-]{20,}|sk-[0-9A-Za-z]{16,})\b`)
	queryRe  = regexp.MustCompile(`(?i)([?&](?:key|token|api_key)=)[^&\s]+`)
)

// SetEnabled toggles PII redaction of transcripts and chat text.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails and phone numbers when enabled. Credentials are always
// masked.
func Text(in string) string {
	if strings.TrimSpace(in) == "" {
		return in
	}
	out := Credentials(in)
	if !enabled.Load() {
		return out
	}
	out = emailRe.ReplaceAllString(out, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Credentials masks API keys and key-bearing query parameters.
func Credentials(in string) string {
	out := apiKeyRe.ReplaceAllString(in, "[REDACTED_KEY]")
	return queryRe.ReplaceAllString(out, "${1}[REDACTED_KEY]")
}

// Secret shows only the last four characters of a configured secret.
func Secret(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
