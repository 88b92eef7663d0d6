package tintuc

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	audiomock "github.com/harunnryd/tintuc/pkg/audio/mock"
	"github.com/harunnryd/tintuc/pkg/chat"
	"github.com/harunnryd/tintuc/pkg/news"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Audio.Mock = true
	cfg.Reader.SettleDelayMS = 0
	cfg.Reader.ListenDuringPlaybackMS = 0
	cfg.Listening.CaptureWindowMS = 20
	cfg.Listening.RestartDelayMS = 0
	cfg.Chat.Database = ":memory:"
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), EngineOptions{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Output: &audiomock.Output{AutoFinish: time.Millisecond},
		News: news.Static{
			{Title: "Giá vàng hôm nay tăng mạnh", URL: "https://example.test/1"},
			{Title: "Đường sắt cao tốc Bắc Nam", URL: "https://example.test/2"},
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestEngineRunsAndSelectsBySimulatedSpeech(t *testing.T) {
	e := newTestEngine(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for !e.Reader().Loop().Snapshot().IsListening {
		if time.Now().After(deadline) {
			t.Fatalf("listening never started")
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err := e.Simulate("tin số 2"); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for e.Reader().Session().Snapshot().SelectedIndex != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("article was not selected")
		}
		time.Sleep(2 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not return")
	}
}

func TestEngineVoicesAndChat(t *testing.T) {
	e := newTestEngine(t, testConfig(t))
	defer e.Drain()

	voices, err := e.Voices(context.Background(), "")
	if err != nil || len(voices) != 1 || voices[0].LanguageCodes[0] != "vi-VN" {
		t.Fatalf("unexpected voices %+v err=%v", voices, err)
	}

	svc, err := e.Chat(context.Background())
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	res, err := svc.Send(context.Background(), chat.SendRequest{Text: "xin chào"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Reply.Text != "echo: xin chào" {
		t.Fatalf("unexpected reply %q", res.Reply.Text)
	}
	store, err := e.ChatStore(context.Background())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	list, _ := store.ListConversations(context.Background())
	if len(list) != 1 || list[0].MessageCount != 2 {
		t.Fatalf("unexpected conversations %+v", list)
	}
}

func TestEngineSimulateNeedsMocks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audio.Mock = false
	e, err := NewEngine(context.Background(), EngineOptions{
		Config:   cfg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Recorder: audiomock.NewRecorder(),
		Output:   audiomock.NewOutput(),
		News:     news.Static{},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer e.Drain()
	if err := e.Simulate("tin số 1"); err == nil {
		t.Fatalf("expected error without mock audio")
	}
}
