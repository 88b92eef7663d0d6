package redact

import (
	"strings"
	"testing"
)

func TestRedactDisabled(t *testing.T) {
	SetEnabled(false)
	in := "email a@b.com and phone 0912 345 678"
	if got := Text(in); got != in {
		t.Fatalf("expected no redaction, got %q", got)
	}
}

func TestRedactEnabled(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	in := "email a@b.com and phone 0912 345 678"
	got := Text(in)
	if got == in {
		t.Fatalf("expected redaction")
	}
	if want := "[REDACTED_EMAIL]"; !strings.Contains(got, want) {
		t.Fatalf("expected %q in output", want)
	}
	if want := "[REDACTED_PHONE]"; !strings.Contains(got, want) {
		t.Fatalf("expected %q in output", want)
	}
}

func TestCredentialsAlwaysMasked(t *testing.T) {
	SetEnabled(false)
	in := "GET https://generativelanguage.googleapis.com/v1beta/models?key=AIzaSyA1234567890abcdefghijk"
	got := Text(in)
	if strings.Contains(got, "AIzaSyA1234567890") {
		t.Fatalf("expected key masked, got %q", got)
	}
}

func TestSecret(t *testing.T) {
	if Secret("abcdef123") != "****f123" {
		t.Fatalf("unexpected mask %q", Secret("abcdef123"))
	}
	if Secret("") != "" || Secret("ab") != "****" {
		t.Fatalf("unexpected short masks")
	}
}
