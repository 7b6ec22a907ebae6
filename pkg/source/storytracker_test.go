package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cmallory/storydigest/pkg/topic"
	"github.com/stretchr/testify/require"
)

// fakeTracker mimics the two-hop layout: a search results page with story
// links, and a story page per link pointing at the external original.
func fakeTracker(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		area := r.PostForm.Get("issue-areas[]")
		fmt.Fprintf(w, `<html><body>
<a href="/story/1" class="story-title">A long enough story title about %s</a>
<a href="/story/2">short</a>
<a href="/story/3">Sponsored long story title we filter out</a>
</body></html>`, area)
	})

	mux.HandleFunc("/story/1", func(w http.ResponseWriter, r *http.Request) {
		// The self link must be skipped as internal navigation.
		fmt.Fprint(w, `<html><body>
<a href="`+srv.URL+`/about">About us</a>
<a href="https://news.example.com/original">Read the original</a>
<span class="outlet">Example News</span>
</body></html>`)
	})

	return srv
}

func TestStoryTrackerCollect(t *testing.T) {
	srv := fakeTracker(t)

	st := NewStoryTracker(StoryTrackerOpts{
		BaseURL:     srv.URL + "/",
		Delay:       time.Millisecond,
		MaxPerTopic: 5,
		Topics:      []topic.Topic{topic.Health},
		Filter:      NewFilter([]string{"sponsored"}),
	})

	stories, err := st.Collect(context.Background())
	require.NoError(t, err)

	// /story/2 fails the minimum title length, /story/3 hits the filter.
	require.Len(t, stories, 1)
	require.Equal(t, "A long enough story title about Health", stories[0].Title)
	require.Equal(t, "https://news.example.com/original", stories[0].URL)
	require.Equal(t, "Example News", stories[0].Outlet)
	require.Equal(t, topic.Health, stories[0].Topic)
}

func TestStoryTrackerHonorsMaxPerTopic(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 5; i++ {
			fmt.Fprintf(w, `<a href="/story/%d">A sufficiently long story title %d</a>`, i, i)
		}
	})
	mux.HandleFunc("/story/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<a href="https://news.example.com%s">original</a>`, r.URL.Path)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	st := NewStoryTracker(StoryTrackerOpts{
		BaseURL:     srv.URL + "/",
		Delay:       time.Millisecond,
		MaxPerTopic: 2,
		Topics:      []topic.Topic{topic.Housing},
	})

	stories, err := st.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, stories, 2)
}

func TestStoryTrackerSkipsUnresolvableStories(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/story/1">A story whose page has no external link</a>`)
	})
	mux.HandleFunc("/story/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Nothing to see</p></body></html>`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	st := NewStoryTracker(StoryTrackerOpts{
		BaseURL: srv.URL + "/",
		Delay:   time.Millisecond,
		Topics:  []topic.Topic{topic.Health},
	})

	stories, err := st.Collect(context.Background())
	require.NoError(t, err)
	require.Empty(t, stories)
}
