package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cmallory/storydigest/internal/store"
	"github.com/cmallory/storydigest/pkg/campaign"
	"github.com/cmallory/storydigest/pkg/email"
	"github.com/cmallory/storydigest/pkg/selector"
	"github.com/cmallory/storydigest/pkg/server"
	"github.com/cmallory/storydigest/pkg/source"
	"github.com/cmallory/storydigest/pkg/topic"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, sources []source.Source) (*store.SQLiteStore, *httptest.Server) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sel := selector.New(st, topic.DefaultGraph(0), 0)
	renderer, err := email.NewRenderer("Story Digest")
	require.NoError(t, err)
	deliverer, err := email.NewFileDeliverer(t.TempDir())
	require.NoError(t, err)
	runner := campaign.New(st, sel, renderer, deliverer, 1, nil)

	srv := httptest.NewServer(server.New(st, runner, sources, 0).Handler())
	t.Cleanup(srv.Close)
	return st, srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", decode(t, resp)["status"])
}

func TestSubscribeValidation(t *testing.T) {
	_, srv := newTestServer(t, nil)
	url := srv.URL + "/api/v1/subscribe"

	cases := []struct {
		name string
		body string
	}{
		{"bad email", `{"email":"nope","topics":["Health","Housing","Education"]}`},
		{"two topics", `{"email":"a@b.com","topics":["Health","Housing"]}`},
		{"unknown topic", `{"email":"a@b.com","topics":["Health","Housing","Knitting"]}`},
		{"duplicate topic", `{"email":"a@b.com","topics":["Health","Health","Housing"]}`},
		{"invalid json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, url, tc.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	st, srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/subscribe",
		`{"email":"Reader@Example.com","topics":["Health","Housing","Education"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Email is normalized on the way in.
	sub, err := st.SubscriberByEmail(context.Background(), "reader@example.com")
	require.NoError(t, err)
	require.Equal(t, topic.Health, sub.Topic1)

	resp = postJSON(t, srv.URL+"/api/v1/unsubscribe", `{"email":"reader@example.com"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	subs, err := st.ListActiveSubscribers(context.Background())
	require.NoError(t, err)
	require.Empty(t, subs)

	resp = postJSON(t, srv.URL+"/api/v1/unsubscribe", `{"email":"ghost@example.com"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPreviewEndpoint(t *testing.T) {
	st, srv := newTestServer(t, nil)
	ctx := context.Background()

	_, err := st.UpsertSubscriber(ctx, "reader@example.com", topic.Health, topic.Housing, topic.Education)
	require.NoError(t, err)
	_, err = st.AddArticle(ctx, "Clinic cuts wait times", "https://example.com/clinic", "Example News", topic.Health)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/v1/preview?email=reader@example.com")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp2, err := http.Get(srv.URL + "/api/v1/preview?email=ghost@example.com")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)

	resp3, err := http.Get(srv.URL + "/api/v1/preview")
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestArticlesEndpoint(t *testing.T) {
	st, srv := newTestServer(t, nil)
	ctx := context.Background()

	_, err := st.AddArticle(ctx, "Health story", "https://example.com/h", "", topic.Health)
	require.NoError(t, err)
	_, err = st.AddArticle(ctx, "Housing story", "https://example.com/ho", "", topic.Housing)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/v1/articles?topic=Health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	require.EqualValues(t, 1, out["count"])
}

func TestSendEndpoint(t *testing.T) {
	st, srv := newTestServer(t, nil)
	ctx := context.Background()

	_, err := st.UpsertSubscriber(ctx, "reader@example.com", topic.Health, topic.Housing, topic.Education)
	require.NoError(t, err)
	_, err = st.AddArticle(ctx, "Health story", "https://example.com/h", "", topic.Health)
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/api/v1/send", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := decode(t, resp)["data"].(map[string]any)
	require.EqualValues(t, 1, data["successful_sends"])

	// GET is not allowed.
	getResp, err := http.Get(srv.URL + "/api/v1/send")
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)
}

type stubSource struct {
	stories []source.Scraped
}

func (stubSource) Name() string { return "stub" }

func (s stubSource) Collect(context.Context) ([]source.Scraped, error) {
	return s.stories, nil
}

func TestScrapeEndpoint(t *testing.T) {
	src := stubSource{stories: []source.Scraped{
		{Title: "Scraped story", URL: "https://example.com/s", Outlet: "Example News", Topic: topic.Health},
	}}
	st, srv := newTestServer(t, []source.Source{src})

	resp := postJSON(t, srv.URL+"/api/v1/scrape", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	collected := decode(t, resp)["collected"].(map[string]any)
	require.EqualValues(t, 1, collected["stub"])

	articles, err := st.ListArticles(context.Background(), store.ArticleListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, articles, 1)
}

func TestCampaignsEndpoint(t *testing.T) {
	st, srv := newTestServer(t, nil)

	_, err := st.CreateCampaign(context.Background(), "manual", "")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/v1/campaigns")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, decode(t, resp)["count"])
}
