package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/harunnryd/tintuc/pkg/llm"
)

// Generator echoes prompts, or replays scripted replies and errors.
type Generator struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []llm.Request
}

// NewGenerator returns a generator that answers with replies in order and
// echoes the prompt once they run out.
func NewGenerator(replies ...string) *Generator {
	return &Generator{replies: replies}
}

// FailNext queues errors returned before any reply.
func (g *Generator) FailNext(errs ...error) {
	g.mu.Lock()
	g.errs = append(g.errs, errs...)
	g.mu.Unlock()
}

func (g *Generator) Name() string { return "mock_llm" }

func (g *Generator) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return llm.Response{}, err
	}
	text := fmt.Sprintf("echo: %s", req.Text)
	if len(g.replies) > 0 {
		text = g.replies[0]
		g.replies = g.replies[1:]
	}
	return llm.Response{Text: text, FinishReason: "STOP", Usage: llm.Usage{TotalTokens: len(req.Text)}}, nil
}

func (g *Generator) Requests() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Request(nil), g.requests...)
}

var _ llm.Generator = (*Generator)(nil)
