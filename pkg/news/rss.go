package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/logging"
	"github.com/harunnryd/tintuc/pkg/metrics"
	"github.com/harunnryd/tintuc/pkg/resilience"
)

const (
	DefaultFeedURL = "https://tuoitre.vn/rss/tin-moi-nhat.rss"
	DefaultLimit   = 5
	userAgent      = "tintuc/1.0"
)

var cdataRe = regexp.MustCompile(`(?s)^.*\[CDATA\[(.*?)\]\].*$`)

type RSSConfig struct {
	FeedURL string
	Limit   int
	Timeout time.Duration
	Retry   resilience.RetryPolicy
}

// RSSFeed reads articles from an RSS or Atom feed.
type RSSFeed struct {
	cfg      RSSConfig
	parser   *gofeed.Parser
	observer metrics.Observer
	logger   *slog.Logger
}

func NewRSSFeed(cfg RSSConfig, client *http.Client, observer metrics.Observer, logger *slog.Logger) *RSSFeed {
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if observer == nil {
		observer = metrics.NoopObserver{}
	}
	p := gofeed.NewParser()
	p.Client = client
	p.UserAgent = userAgent
	return &RSSFeed{
		cfg:      cfg,
		parser:   p,
		observer: observer,
		logger:   logging.NewComponentLogger(logger, "news"),
	}
}

// Latest fetches the feed and returns at most Limit articles in feed order.
func (f *RSSFeed) Latest(ctx context.Context) ([]Article, error) {
	start := time.Now()
	var feed *gofeed.Feed
	err := f.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		feed, err = f.parser.ParseURLWithContext(f.cfg.FeedURL, ctx)
		return err
	})
	if err != nil {
		metrics.Record(f.observer, metrics.EventNewsFetch, 0, map[string]string{"outcome": "error"})
		return nil, classify(err)
	}
	articles := FromFeed(feed, f.cfg.Limit)
	metrics.Since(f.observer, metrics.EventNewsFetch, start, map[string]string{"outcome": "ok"})
	f.logger.Info("news_fetched", "feed", feed.Title, "items", len(feed.Items), "articles", len(articles))
	return articles, nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var herr gofeed.HTTPError
	if errors.As(err, &herr) {
		if herr.StatusCode == http.StatusTooManyRequests {
			return errorsx.Wrap(fmt.Errorf("news feed: %w", err), errorsx.ReasonQuotaExceeded)
		}
	}
	return errorsx.Wrap(fmt.Errorf("news feed: %w", err), errorsx.ReasonNewsFetch)
}

// ParseFeed parses a feed document that is already in memory.
func ParseFeed(body string, limit int) ([]Article, error) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("parse feed: %w", err), errorsx.ReasonNewsFetch)
	}
	return FromFeed(feed, limit), nil
}

// FromFeed maps feed items to articles. Titles and descriptions are
// stripped of CDATA wrappers and markup.
func FromFeed(feed *gofeed.Feed, limit int) []Article {
	if feed == nil {
		return nil
	}
	items := feed.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]Article, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		desc := CleanText(it.Description)
		content := CleanText(it.Content)
		if content == "" {
			content = desc
		}
		a := Article{
			Title:       CleanText(it.Title),
			URL:         strings.TrimSpace(it.Link),
			Description: desc,
			Content:     content,
			AudioURL:    audioEnclosure(it),
		}
		if it.PublishedParsed != nil {
			a.PublishedAt = *it.PublishedParsed
		}
		out = append(out, a)
	}
	return out
}

func audioEnclosure(it *gofeed.Item) string {
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "audio/") {
			return enc.URL
		}
	}
	return ""
}

// CleanText unwraps CDATA and reduces HTML to its text with collapsed
// whitespace.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "[CDATA[") {
		s = cdataRe.ReplaceAllString(s, "$1")
	}
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
