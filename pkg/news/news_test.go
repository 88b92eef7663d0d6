package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/metrics"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Tuổi Trẻ Online - Tin mới nhất</title>
  <item>
    <title><![CDATA[Giá xăng giảm mạnh từ chiều nay]]></title>
    <link>https://tuoitre.vn/gia-xang.htm</link>
    <description><![CDATA[<a href="/x"><img src="a.jpg"/></a>Giá xăng <b>RON 95</b> giảm   800 đồng]]></description>
    <pubDate>Fri, 17 Oct 2025 08:00:00 +0700</pubDate>
  </item>
  <item>
    <title>Đội tuyển bóng đá thắng trận mở màn</title>
    <link>https://tuoitre.vn/bong-da.htm</link>
    <description>Trận đấu kết thúc 2-0</description>
    <enclosure url="https://cdn.tuoitre.vn/bong-da.mp3" type="audio/mpeg" length="1"/>
    <pubDate>Fri, 17 Oct 2025 07:00:00 +0700</pubDate>
  </item>
  <item>
    <title>Mưa lớn ở miền Trung</title>
    <link>https://tuoitre.vn/mua.htm</link>
    <description>Cảnh báo lũ</description>
  </item>
</channel>
</rss>`

func TestParseFeedCleansAndKeepsOrder(t *testing.T) {
	articles, err := ParseFeed(sampleFeed, 2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(articles))
	}
	first := articles[0]
	if first.Title != "Giá xăng giảm mạnh từ chiều nay" {
		t.Fatalf("title = %q", first.Title)
	}
	if first.Description != "Giá xăng RON 95 giảm 800 đồng" {
		t.Fatalf("description = %q", first.Description)
	}
	if first.Content != first.Description {
		t.Fatalf("content should fall back to description")
	}
	if first.HasAudio() {
		t.Fatalf("first article has no audio")
	}
	if first.PublishedAt.IsZero() {
		t.Fatalf("expected parsed publish date")
	}
	if articles[1].AudioURL != "https://cdn.tuoitre.vn/bong-da.mp3" {
		t.Fatalf("audio = %q", articles[1].AudioURL)
	}
}

func TestCleanText(t *testing.T) {
	cases := map[string]string{
		"":                           "",
		"  plain  text ":             "plain text",
		"x [CDATA[inner]] y":         "inner",
		"<p>a &amp; <i>b</i></p>":    "a & b",
		"line\n\tbreak":              "line break",
	}
	for in, want := range cases {
		if got := CleanText(in); got != want {
			t.Fatalf("CleanText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRSSFeedLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != userAgent {
			t.Errorf("user agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	mem := metrics.NewMemoryObserver()
	feed := NewRSSFeed(RSSConfig{FeedURL: srv.URL}, srv.Client(), mem, nil)
	articles, err := feed.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(articles) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(articles))
	}
	if mem.Count(metrics.EventNewsFetch) != 1 {
		t.Fatalf("expected fetch metric")
	}
}

func TestRSSFeedHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	feed := NewRSSFeed(RSSConfig{FeedURL: srv.URL}, srv.Client(), nil, nil)
	_, err := feed.Latest(context.Background())
	if !errorsx.HasReason(err, errorsx.ReasonNewsFetch) {
		t.Fatalf("expected news_fetch reason, got %v", err)
	}
}

func TestFindAudio(t *testing.T) {
	cases := []struct {
		html string
		want string
	}{
		{`<audio src="/a.mp3"></audio>`, "/a.mp3"},
		{`<audio><source src="b.mp3" type="audio/mpeg"></audio>`, "b.mp3"},
		{`<html><head><meta property="og:audio" content="https://x/c.mp3"></head></html>`, "https://x/c.mp3"},
		{`<div data-audio-url="d.mp3"></div>`, "d.mp3"},
		{`<p>no audio</p>`, ""},
	}
	for _, tc := range cases {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(tc.html))
		if err != nil {
			t.Fatalf("doc: %v", err)
		}
		if got := FindAudio(doc); got != tc.want {
			t.Fatalf("FindAudio(%q) = %q, want %q", tc.html, got, tc.want)
		}
	}
}

func TestPageAudioResolverAbsolutizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><audio src="/media/a.mp3"></audio></body></html>`))
	}))
	defer srv.Close()

	r := NewPageAudioResolver(srv.Client(), nil)
	got, err := r.ResolveAudio(context.Background(), srv.URL+"/news/1.htm")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != srv.URL+"/media/a.mp3" {
		t.Fatalf("audio = %q", got)
	}
}

func TestStaticSource(t *testing.T) {
	src := Static{{Title: "a"}, {Title: "b"}}
	got, err := src.Latest(context.Background())
	if err != nil || len(got) != 2 {
		t.Fatalf("latest = %v, %v", got, err)
	}
	got[0].Title = "changed"
	if src[0].Title != "a" {
		t.Fatalf("static source must return a copy")
	}
}
