package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cmallory/storydigest/pkg/topic"
	"github.com/mmcdole/gofeed"
)

// Feed is an RSS/Atom feed whose stories all belong to one topic.
type Feed struct {
	Name  string
	URL   string
	Topic topic.Topic
}

// RSS collects stories from topic-tagged RSS/Atom feeds.
type RSS struct {
	client *http.Client
	parser *gofeed.Parser
	feeds  []Feed
	filter *Filter
}

// NewRSS creates an RSS collector.
func NewRSS(feeds []Feed, filter *Filter) *RSS {
	return &RSS{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
		feeds:  feeds,
		filter: filter,
	}
}

func (r *RSS) Name() string { return "rss" }

func (r *RSS) Collect(ctx context.Context) ([]Scraped, error) {
	var all []Scraped

	for _, feed := range r.feeds {
		stories, err := r.collectFeed(ctx, feed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  rss feed %s error: %v\n", feed.Name, err)
			continue
		}
		all = append(all, stories...)
	}

	return all, nil
}

func (r *RSS) collectFeed(ctx context.Context, feed Feed) ([]Scraped, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create rss request %s: %w", feed.Name, err)
	}
	req.Header.Set("User-Agent", "storydigest/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", feed.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss %s status %d", feed.Name, resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", feed.Name, err)
	}

	var stories []Scraped
	for _, entry := range parsed.Items {
		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}
		if link == "" || entry.Title == "" {
			continue
		}
		if !r.filter.Keep(entry.Title) {
			continue
		}

		outlet := feed.Name
		if parsed.Title != "" {
			outlet = parsed.Title
		}
		if host := hostOf(link); host != "" {
			outlet = host
		}

		stories = append(stories, Scraped{
			Title:  entry.Title,
			URL:    link,
			Outlet: outlet,
			Topic:  feed.Topic,
		})
	}

	return stories, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
