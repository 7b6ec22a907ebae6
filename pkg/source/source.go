package source

import (
	"context"

	"github.com/cmallory/storydigest/pkg/topic"
)

// Scraped is a story as it comes off a source, before it gets an id.
// The store deduplicates on URL when these are persisted.
type Scraped struct {
	Title  string
	URL    string
	Outlet string
	Topic  topic.Topic
}

// Source is the interface every article collector must implement.
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]Scraped, error)
}
