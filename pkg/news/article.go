// Package news fetches the article list read aloud by the voice controller.
package news

import (
	"context"
	"time"
)

// Article is immutable once fetched and identified by URL. An empty
// AudioURL means the article has no recorded audio.
type Article struct {
	Title       string
	URL         string
	AudioURL    string
	PublishedAt time.Time
	Description string
	Content     string
}

func (a Article) HasAudio() bool { return a.AudioURL != "" }

// Source returns the latest articles, newest first.
type Source interface {
	Latest(ctx context.Context) ([]Article, error)
}

// AudioResolver finds a recorded audio URL for an article page. It returns
// "" with a nil error when the page has none.
type AudioResolver interface {
	ResolveAudio(ctx context.Context, pageURL string) (string, error)
}

// Static is a fixed Source, used by tests and offline mode.
type Static []Article

func (s Static) Latest(ctx context.Context) ([]Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Article(nil), s...), nil
}
