package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/llm"
	"github.com/harunnryd/tintuc/pkg/logging"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL           string
	SystemInstruction string
	HTTPClient        *http.Client
}

// Generator calls GenerateContent with the text part first, followed by any
// inline images.
type Generator struct {
	client *genai.Client
	model  string
	system string
	logger *slog.Logger
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Generator{
		client: client,
		model:  cfg.Model,
		system: cfg.SystemInstruction,
		logger: logging.NewComponentLogger(logger, "gemini"),
	}, nil
}

func (g *Generator) Name() string { return "gemini" }

func (g *Generator) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := genai.Role(genai.RoleUser)
		if turn.Role == "model" || turn.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	parts := []*genai.Part{genai.NewPartFromText(req.Text)}
	for _, img := range req.Images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, mime))
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

	var cfg *genai.GenerateContentConfig
	if g.system != "" {
		cfg = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(g.system, genai.RoleUser)}
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		g.logger.Error("gemini_generate_failed", "error", err)
		return llm.Response{}, classify(err)
	}

	out := llm.Response{Text: strings.TrimSpace(resp.Text())}
	if out.Text == "" {
		out.Text = llm.NoResponseText
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return llm.Quota("gemini", apiErr.Message)
		}
		return errorsx.Wrap(fmt.Errorf("gemini: %w", err), errorsx.ReasonChatGenerate)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errorsx.Wrap(fmt.Errorf("gemini: %w", err), errorsx.ReasonNetwork)
}

var _ llm.Generator = (*Generator)(nil)
