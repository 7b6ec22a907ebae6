package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cmallory/storydigest/pkg/topic"
)

// StoryTracker scrapes the Solutions Story Tracker site: one search per
// topic, then one request per story page to resolve the original outlet
// article the story points at.
type StoryTracker struct {
	client      *http.Client
	baseURL     string
	userAgent   string
	delay       time.Duration
	maxPerTopic int
	topics      []topic.Topic
	filter      *Filter
}

// StoryTrackerOpts configures the scraper.
type StoryTrackerOpts struct {
	BaseURL     string
	UserAgent   string
	Delay       time.Duration
	Timeout     time.Duration
	MaxPerTopic int
	Topics      []topic.Topic // empty means all topics
	Filter      *Filter
}

// NewStoryTracker creates the scraper with sane defaults for anything unset.
func NewStoryTracker(opts StoryTrackerOpts) *StoryTracker {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://storytracker.solutionsjournalism.org/"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "storydigest/1.0"
	}
	if opts.Delay <= 0 {
		opts.Delay = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxPerTopic <= 0 {
		opts.MaxPerTopic = 10
	}
	if len(opts.Topics) == 0 {
		opts.Topics = topic.All()
	}
	return &StoryTracker{
		client:      &http.Client{Timeout: opts.Timeout},
		baseURL:     opts.BaseURL,
		userAgent:   opts.UserAgent,
		delay:       opts.Delay,
		maxPerTopic: opts.MaxPerTopic,
		topics:      opts.Topics,
		filter:      opts.Filter,
	}
}

func (s *StoryTracker) Name() string { return "storytracker" }

func (s *StoryTracker) Collect(ctx context.Context) ([]Scraped, error) {
	var all []Scraped

	for _, t := range s.topics {
		stories, err := s.collectTopic(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			fmt.Fprintf(os.Stderr, "  storytracker %s error: %v\n", t, err)
			continue
		}
		all = append(all, stories...)
	}

	return all, nil
}

func (s *StoryTracker) collectTopic(ctx context.Context, t topic.Topic) ([]Scraped, error) {
	form := url.Values{
		"issue-areas[]":  {string(t)},
		"search_stories": {"Search"},
	}

	doc, err := s.fetchDocument(ctx, http.MethodPost, s.baseURL, form)
	if err != nil {
		return nil, err
	}

	var stories []Scraped
	doc.Find(`a[href*="/story/"], .story-title a, .story-link`).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		if len(stories) >= s.maxPerTopic {
			return false
		}
		if ctx.Err() != nil {
			return false
		}

		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		storyURL := s.absoluteURL(href)
		if storyURL == "" {
			return true
		}

		title := cleanTitle(link.Text())
		if len(title) < 10 || !s.filter.Keep(title) {
			return true
		}

		originalURL, outlet, err := s.resolveStory(ctx, storyURL)
		if err != nil || originalURL == "" {
			return true
		}

		stories = append(stories, Scraped{
			Title:  title,
			URL:    originalURL,
			Outlet: outlet,
			Topic:  t,
		})

		// Polite delay between story-page requests.
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.delay):
		}
		return true
	})

	return stories, ctx.Err()
}

// resolveStory opens a story page and extracts the original article link
// and its outlet (the story tracker pages wrap third-party journalism).
func (s *StoryTracker) resolveStory(ctx context.Context, storyURL string) (string, string, error) {
	doc, err := s.fetchDocument(ctx, http.MethodGet, storyURL, nil)
	if err != nil {
		return "", "", err
	}

	base, _ := url.Parse(s.baseURL)
	var original string
	doc.Find(`a[href^="http"]`).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		u, err := url.Parse(href)
		if err != nil || u.Host == "" {
			return true
		}
		if base != nil && strings.EqualFold(u.Host, base.Host) {
			return true // internal navigation, keep looking
		}
		original = href
		return false
	})
	if original == "" {
		return "", "", nil
	}

	outlet := strings.TrimSpace(doc.Find(".outlet, .story-outlet, .publication").First().Text())
	if outlet == "" {
		outlet = hostOf(original)
	}
	return original, outlet, nil
}

func (s *StoryTracker) fetchDocument(ctx context.Context, method, pageURL string, form url.Values) (*goquery.Document, error) {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, pageURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}

func (s *StoryTracker) absoluteURL(href string) string {
	if href == "" {
		return ""
	}
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func cleanTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
