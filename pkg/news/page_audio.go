package news

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/logging"
)

var audioSelectors = []struct {
	query string
	attr  string
}{
	{"audio[src]", "src"},
	{"audio source[src]", "src"},
	{`meta[property="og:audio"]`, "content"},
	{`meta[property="og:audio:url"]`, "content"},
	{"[data-audio-url]", "data-audio-url"},
}

// PageAudioResolver scrapes an article page for an embedded audio player.
type PageAudioResolver struct {
	client *http.Client
	logger *slog.Logger
}

func NewPageAudioResolver(client *http.Client, logger *slog.Logger) *PageAudioResolver {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &PageAudioResolver{client: client, logger: logging.NewComponentLogger(logger, "news_audio")}
}

func (r *PageAudioResolver) ResolveAudio(ctx context.Context, pageURL string) (string, error) {
	doc, err := r.fetchDocument(ctx, pageURL)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonNewsFetch)
	}
	src := FindAudio(doc)
	if src == "" {
		r.logger.Debug("page_audio_missing", "url", pageURL)
		return "", nil
	}
	return absolute(pageURL, src), nil
}

func (r *PageAudioResolver) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("article page returned %s", resp.Status)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// FindAudio returns the first audio reference in the document or "".
func FindAudio(doc *goquery.Document) string {
	for _, sel := range audioSelectors {
		if v, ok := doc.Find(sel.query).First().Attr(sel.attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func absolute(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
