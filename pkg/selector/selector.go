// Package selector picks fresh articles for a subscriber's topics, falling
// back to related topics when the primary topic runs dry. Selection never
// writes: recording sends is the campaign runner's job, which is what makes
// previews free.
package selector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cmallory/storydigest/internal/store"
	"github.com/cmallory/storydigest/pkg/topic"
)

// DefaultFetchLimit bounds the candidate pool fetched per topic. It is
// intentionally larger than any realistic articles-per-topic setting so the
// selector always has spares.
const DefaultFetchLimit = 10

// Selection is the outcome of one Select call.
type Selection struct {
	// Articles maps each of the subscriber's topics to its chosen
	// articles, primary picks first, then fallback picks in graph order.
	Articles map[topic.Topic][]store.Article

	// FallbackUsed is true for a topic when at least one chosen article
	// comes from a related topic rather than the requested one.
	FallbackUsed map[topic.Topic]bool

	// Exhausted is true for a topic when nothing was found anywhere,
	// primary and fallbacks included. Kept separate from FallbackUsed:
	// "we substituted related stories" and "we found nothing" are
	// different messages to the reader.
	Exhausted map[topic.Topic]bool
}

// Total returns the number of articles across all topics.
func (s *Selection) Total() int {
	n := 0
	for _, articles := range s.Articles {
		n += len(articles)
	}
	return n
}

// ArticleIDs returns the ids of every chosen article, deduplicated. The
// same fallback article can satisfy two of the subscriber's topics.
func (s *Selection) ArticleIDs() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, articles := range s.Articles {
		for _, a := range articles {
			if !seen[a.ID] {
				seen[a.ID] = true
				ids = append(ids, a.ID)
			}
		}
	}
	return ids
}

// Selector chooses articles for subscribers. Selection is fully
// deterministic given store state: previews match real sends.
type Selector struct {
	store      store.Store
	graph      *topic.FallbackGraph
	fetchLimit int
}

// New creates a selector. fetchLimit <= 0 uses DefaultFetchLimit.
func New(st store.Store, graph *topic.FallbackGraph, fetchLimit int) *Selector {
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	return &Selector{store: st, graph: graph, fetchLimit: fetchLimit}
}

// Select picks up to perTopic fresh articles for each of the subscriber's
// three topics. perTopic <= 0 resolves to the min_articles_per_category
// admin setting. Topics are processed independently; an empty list is a
// valid terminal state, not an error.
func (s *Selector) Select(ctx context.Context, sub *store.Subscriber, perTopic int) (*Selection, error) {
	if perTopic <= 0 {
		raw, err := s.store.Setting(ctx, store.SettingMinArticlesPerTopic, "1")
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", store.SettingMinArticlesPerTopic, err)
		}
		if perTopic, err = strconv.Atoi(raw); err != nil || perTopic <= 0 {
			perTopic = 1
		}
	}

	fallbackRaw, err := s.store.Setting(ctx, store.SettingFallbackEnabled, "1")
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", store.SettingFallbackEnabled, err)
	}
	fallbackEnabled := fallbackRaw == "1"

	sel := &Selection{
		Articles:     make(map[topic.Topic][]store.Article, 3),
		FallbackUsed: make(map[topic.Topic]bool, 3),
		Exhausted:    make(map[topic.Topic]bool, 3),
	}

	for _, t := range sub.Topics() {
		if _, done := sel.Articles[t]; done {
			continue // subscriber listed the same topic twice
		}

		picks, err := s.selectForTopic(ctx, sub.ID, t, perTopic, fallbackEnabled)
		if err != nil {
			return nil, err
		}

		sel.Articles[t] = picks
		sel.Exhausted[t] = len(picks) == 0
		for _, a := range picks {
			if a.Topic != t {
				sel.FallbackUsed[t] = true
				break
			}
		}
	}

	return sel, nil
}

// selectForTopic fetches candidates for the topic and its fallbacks in one
// batched store call, then fills the quota: primary picks first in store
// order, then each fallback topic in graph order until the need is met.
func (s *Selector) selectForTopic(ctx context.Context, subscriberID int64, t topic.Topic, need int, fallbackEnabled bool) ([]store.Article, error) {
	related := []topic.Topic{t}
	if fallbackEnabled {
		related = s.graph.Related(t)
	}

	byTopic, err := s.store.FreshArticles(ctx, subscriberID, related, s.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates for %s: %w", t, err)
	}

	picks := take(nil, byTopic[t], need)

	if fallbackEnabled && len(picks) < need {
		for _, fb := range s.graph.Fallbacks(t) {
			if len(picks) >= need {
				break
			}
			picks = take(picks, byTopic[fb], need)
		}
	}

	return picks, nil
}

// take appends articles from candidates onto picks until picks holds need
// entries, skipping any article already picked.
func take(picks, candidates []store.Article, need int) []store.Article {
	for _, a := range candidates {
		if len(picks) >= need {
			break
		}
		if containsID(picks, a.ID) {
			continue
		}
		picks = append(picks, a)
	}
	return picks
}

func containsID(articles []store.Article, id int64) bool {
	for _, a := range articles {
		if a.ID == id {
			return true
		}
	}
	return false
}
