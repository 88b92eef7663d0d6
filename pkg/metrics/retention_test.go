package metrics

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPurgeCapturesKeepsRecentAndOtherFiles(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)
	for _, name := range []string{"old.wav", "new.wav", "metrics.jsonl"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for _, name := range []string{"old.wav", "metrics.jsonl"} {
		if err := os.Chtimes(filepath.Join(dir, name), old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	n, err := PurgeCaptures(dir, 24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("expected one removal, got %d err=%v", n, err)
	}
	for _, name := range []string{"new.wav", "metrics.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s should be kept: %v", name, err)
		}
	}
	if n, err := PurgeCaptures(filepath.Join(dir, "missing"), time.Hour); n != 0 || err != nil {
		t.Fatalf("missing dir should be a no-op, got %d %v", n, err)
	}
}

func TestLogObserverOnlyAtDebug(t *testing.T) {
	var buf bytes.Buffer
	info := NewLogObserver(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	Record(info, EventSilence, -100, nil)
	if buf.Len() != 0 {
		t.Fatalf("expected nothing at info level, got %q", buf.String())
	}
	debug := NewLogObserver(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	Record(debug, EventSilence, -100, map[string]string{"outcome": "restart"})
	if out := buf.String(); !strings.Contains(out, "event=listening_silence") || !strings.Contains(out, "outcome=restart") {
		t.Fatalf("unexpected log line %q", out)
	}
}
