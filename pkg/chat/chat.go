package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/llm"
	"github.com/harunnryd/tintuc/pkg/logging"
	"github.com/harunnryd/tintuc/pkg/metrics"
	"github.com/harunnryd/tintuc/pkg/redact"
	"github.com/harunnryd/tintuc/pkg/resilience"
)

// ErrQuotaExceeded is returned by Send when the model provider rate limits.
var ErrQuotaExceeded = llm.ErrQuotaExceeded

const titleRunes = 50

// Attachment is an image sent with a message. Ref is what gets stored.
type Attachment struct {
	Ref   string
	Image llm.Image
}

type SendRequest struct {
	// ConversationID 0 starts a new conversation.
	ConversationID int64
	Text           string
	Attachments    []Attachment
}

type SendResult struct {
	Conversation Conversation
	User         Message
	Reply        Message
	Usage        llm.Usage
}

type Options struct {
	Store     Store
	Generator llm.Generator
	// HistoryTurns is how many earlier messages are sent as context.
	HistoryTurns int
	Retry        resilience.RetryPolicy
	Observer     metrics.Observer
	Logger       *slog.Logger
}

type Service struct {
	store     Store
	generator llm.Generator
	history   int
	retry     resilience.RetryPolicy
	observer  metrics.Observer
	logger    *slog.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("chat store is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("chat generator is required")
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = func(err error) bool {
			return errorsx.HasReason(err, errorsx.ReasonNetwork)
		}
	}
	return &Service{
		store:     opts.Store,
		generator: opts.Generator,
		history:   opts.HistoryTurns,
		retry:     opts.Retry,
		observer:  opts.Observer,
		logger:    logging.NewComponentLogger(opts.Logger, "chat"),
	}, nil
}

// Send stores the user message, asks the model for a reply and stores it.
// The user message is kept even when generation fails.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && len(req.Attachments) == 0 {
		return SendResult{}, errors.New("message text or attachment is required")
	}

	var conv Conversation
	var err error
	if req.ConversationID == 0 {
		conv, err = s.store.CreateConversation(ctx, TitleFor(text))
	} else {
		conv, err = s.store.GetConversation(ctx, req.ConversationID)
	}
	if err != nil {
		return SendResult{}, err
	}

	var history []llm.Turn
	if s.history > 0 {
		prior, err := s.store.Messages(ctx, conv.ID)
		if err != nil {
			return SendResult{}, err
		}
		history = toTurns(prior, s.history)
	}

	user := Message{ConversationID: conv.ID, Sender: SenderUser, Text: text}
	images := make([]llm.Image, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		if a.Ref != "" {
			user.ImageRefs = append(user.ImageRefs, a.Ref)
		}
		if len(a.Image.Data) > 0 {
			images = append(images, a.Image)
		}
	}
	if err := s.store.AddMessage(ctx, &user); err != nil {
		return SendResult{}, err
	}

	start := time.Now()
	var resp llm.Response
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var genErr error
		resp, genErr = s.generator.Generate(ctx, llm.Request{Text: text, Images: images, History: history})
		return genErr
	})
	tags := map[string]string{"provider": s.generator.Name()}
	if err != nil {
		tags["status"] = "error"
		metrics.Since(s.observer, metrics.EventChatGenerate, start, tags)
		s.logger.Error("chat_generate_failed",
			"conversation_id", conv.ID,
			"reason", errorsx.Reason(err),
			"error", err)
		if errors.Is(err, ErrQuotaExceeded) || resilience.IsRateLimit(err) {
			return SendResult{Conversation: conv, User: user}, errorsx.Wrap(fmt.Errorf("chat: %w", err), errorsx.ReasonQuotaExceeded)
		}
		return SendResult{Conversation: conv, User: user}, errorsx.Wrap(fmt.Errorf("generate reply: %w", err), errorsx.ReasonChatGenerate)
	}
	tags["status"] = "ok"
	metrics.Since(s.observer, metrics.EventChatGenerate, start, tags)

	replyText := strings.TrimSpace(resp.Text)
	if replyText == "" {
		replyText = llm.NoResponseText
	}
	reply := Message{ConversationID: conv.ID, Sender: SenderAI, Text: replyText}
	if err := s.store.AddMessage(ctx, &reply); err != nil {
		return SendResult{}, err
	}
	s.logger.Info("chat_reply",
		"conversation_id", conv.ID,
		"prompt", redact.Text(text),
		"images", len(images),
		"total_tokens", resp.Usage.TotalTokens)

	conv, err = s.store.GetConversation(ctx, conv.ID)
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{Conversation: conv, User: user, Reply: reply, Usage: resp.Usage}, nil
}

// TitleFor derives a conversation title from the first message.
func TitleFor(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) == 0 {
		return "Cuộc trò chuyện mới"
	}
	if len(r) > titleRunes {
		r = r[:titleRunes]
	}
	return string(r) + "..."
}

func toTurns(msgs []Message, limit int) []llm.Turn {
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	turns := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Sender == SenderAI {
			role = "model"
		}
		turns = append(turns, llm.Turn{Role: role, Text: m.Text})
	}
	return turns
}

// ParseID parses a conversation id given on the command line.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", s)
	}
	return id, nil
}
