package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/llm"
	"github.com/harunnryd/tintuc/pkg/metrics"
	"github.com/harunnryd/tintuc/pkg/providers/mock"
)

func openStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSendCreatesConversationWithTitle(t *testing.T) {
	store := openStore(t)
	gen := mock.NewGenerator("Xin chào!")
	obs := metrics.NewMemoryObserver()
	svc, err := NewService(Options{Store: store, Generator: gen, Observer: obs})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	long := strings.Repeat("á", 60)
	res, err := svc.Send(context.Background(), SendRequest{Text: long})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if want := strings.Repeat("á", 50) + "..."; res.Conversation.Title != want {
		t.Fatalf("unexpected title %q", res.Conversation.Title)
	}
	if res.Reply.Text != "Xin chào!" || res.Reply.Sender != SenderAI {
		t.Fatalf("unexpected reply %+v", res.Reply)
	}
	if res.Conversation.MessageCount != 2 || res.Conversation.LastMessage != "Xin chào!" {
		t.Fatalf("unexpected conversation summary %+v", res.Conversation)
	}
	if obs.Count(metrics.EventChatGenerate) != 1 {
		t.Fatalf("expected one generate event")
	}
}

func TestSendAppendsToExistingConversation(t *testing.T) {
	store := openStore(t)
	gen := mock.NewGenerator("one", "two")
	svc, _ := NewService(Options{Store: store, Generator: gen, HistoryTurns: 10})
	ctx := context.Background()

	first, err := svc.Send(ctx, SendRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	second, err := svc.Send(ctx, SendRequest{ConversationID: first.Conversation.ID, Text: "again"})
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if second.Conversation.ID != first.Conversation.ID {
		t.Fatalf("expected same conversation")
	}
	msgs, err := store.Messages(ctx, first.Conversation.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	got := make([]string, 0, len(msgs))
	for _, m := range msgs {
		got = append(got, string(m.Sender)+":"+m.Text)
	}
	if strings.Join(got, "|") != "user:hello|ai:one|user:again|ai:two" {
		t.Fatalf("unexpected transcript %v", got)
	}
	reqs := gen.Requests()
	if len(reqs[1].History) != 2 || reqs[1].History[1].Role != "model" {
		t.Fatalf("expected prior turns as history, got %+v", reqs[1].History)
	}
}

func TestSendSendsImagesAndStoresRefs(t *testing.T) {
	store := openStore(t)
	gen := mock.NewGenerator()
	svc, _ := NewService(Options{Store: store, Generator: gen})

	res, err := svc.Send(context.Background(), SendRequest{
		Text: "what is this",
		Attachments: []Attachment{
			{Ref: "photos/cat.jpg", Image: llm.Image{Data: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"}},
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(gen.Requests()[0].Images) != 1 {
		t.Fatalf("expected image forwarded to the model")
	}
	msgs, _ := store.Messages(context.Background(), res.Conversation.ID)
	if len(msgs[0].ImageRefs) != 1 || msgs[0].ImageRefs[0] != "photos/cat.jpg" {
		t.Fatalf("unexpected image refs %+v", msgs[0].ImageRefs)
	}
}

func TestSendMapsQuotaError(t *testing.T) {
	store := openStore(t)
	gen := mock.NewGenerator()
	gen.FailNext(llm.Quota("gemini", "429 Too Many Requests"))
	svc, _ := NewService(Options{Store: store, Generator: gen})

	res, err := svc.Send(context.Background(), SendRequest{Text: "hi"})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonQuotaExceeded) {
		t.Fatalf("expected quota reason, got %s", errorsx.Reason(err))
	}
	if len(gen.Requests()) != 1 {
		t.Fatalf("quota errors must not be retried")
	}
	msgs, _ := store.Messages(context.Background(), res.Conversation.ID)
	if len(msgs) != 1 || msgs[0].Sender != SenderUser {
		t.Fatalf("expected only the user message stored, got %+v", msgs)
	}
}

func TestSendWrapsGenerateFailure(t *testing.T) {
	store := openStore(t)
	gen := mock.NewGenerator()
	gen.FailNext(errors.New("boom"))
	svc, _ := NewService(Options{Store: store, Generator: gen})

	_, err := svc.Send(context.Background(), SendRequest{Text: "hi"})
	if !errorsx.HasReason(err, errorsx.ReasonChatGenerate) {
		t.Fatalf("expected chat_generate reason, got %v", err)
	}
}

func TestSendEmptyReplyFallsBack(t *testing.T) {
	store := openStore(t)
	svc, _ := NewService(Options{Store: store, Generator: mock.NewGenerator("   ")})
	res, err := svc.Send(context.Background(), SendRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Reply.Text != llm.NoResponseText {
		t.Fatalf("expected fallback reply, got %q", res.Reply.Text)
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	svc, _ := NewService(Options{Store: openStore(t), Generator: mock.NewGenerator()})
	if _, err := svc.Send(context.Background(), SendRequest{Text: "  "}); err == nil {
		t.Fatalf("expected error for empty message")
	}
}

func TestSendUnknownConversation(t *testing.T) {
	svc, _ := NewService(Options{Store: openStore(t), Generator: mock.NewGenerator()})
	_, err := svc.Send(context.Background(), SendRequest{ConversationID: 42, Text: "hi"})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreRenameListDelete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	a, _ := store.CreateConversation(ctx, "a")
	b, _ := store.CreateConversation(ctx, "b")
	if err := store.AddMessage(ctx, &Message{ConversationID: a.ID, Sender: SenderUser, Text: "newest"}); err != nil {
		t.Fatalf("add message: %v", err)
	}

	list, err := store.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID {
		t.Fatalf("expected most recently active first, got %+v", list)
	}

	if err := store.RenameConversation(ctx, b.ID, "renamed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, _ := store.GetConversation(ctx, b.ID)
	if got.Title != "renamed" {
		t.Fatalf("expected renamed title, got %q", got.Title)
	}
	if err := store.RenameConversation(ctx, 999, "x"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected not found on rename, got %v", err)
	}

	if err := store.DeleteConversation(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if msgs, _ := store.Messages(ctx, a.ID); len(msgs) != 0 {
		t.Fatalf("expected messages deleted")
	}
	if _, err := store.GetConversation(ctx, a.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected deleted conversation gone")
	}
}

func TestDecodeImageRefs(t *testing.T) {
	if refs := decodeImageRefs(`["a","b"]`); len(refs) != 2 {
		t.Fatalf("unexpected refs %v", refs)
	}
	if refs := decodeImageRefs("https://x/y.png"); len(refs) != 1 {
		t.Fatalf("expected bare ref kept, got %v", refs)
	}
	if refs := decodeImageRefs(""); refs != nil {
		t.Fatalf("expected nil")
	}
}
