package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harunnryd/tintuc/pkg/llm"
)

func newTestGenerator(t *testing.T, h http.HandlerFunc) *Generator {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g, err := New(context.Background(), Config{APIKey: "test", BaseURL: srv.URL + "/"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return g
}

func TestGenerateSendsTextThenImages(t *testing.T) {
	var body map[string]any
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		if !strings.Contains(r.URL.Path, "gemini-2.0-flash") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Xin chào!"}]},"finishReason":"STOP"}]}`))
	})

	resp, err := g.Generate(context.Background(), llm.Request{
		Text:   "Ảnh này là gì?",
		Images: []llm.Image{{Data: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "Xin chào!" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	contents, _ := body["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("expected one content, got %d", len(contents))
	}
	parts, _ := contents[0].(map[string]any)["parts"].([]any)
	if len(parts) != 2 {
		t.Fatalf("expected text and image parts, got %d", len(parts))
	}
	if _, ok := parts[0].(map[string]any)["text"]; !ok {
		t.Fatalf("expected text part first")
	}
}

func TestGenerateEmptyReplyFallsBack(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})
	resp, err := g.Generate(context.Background(), llm.Request{Text: "hi"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != llm.NoResponseText {
		t.Fatalf("expected fallback text, got %q", resp.Text)
	}
}

func TestGenerateQuotaExceeded(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	})
	_, err := g.Generate(context.Background(), llm.Request{Text: "hi"})
	if !errors.Is(err, llm.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}, nil); err == nil {
		t.Fatalf("expected error without api key")
	}
}
