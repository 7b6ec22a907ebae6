package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cmallory/storydigest/pkg/topic"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddArticleIdempotentOnURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.AddArticle(ctx, "Original title", "https://example.com/story", "Example News", topic.Health)
	require.NoError(t, err)

	// Same URL, different metadata: same id, first write wins.
	id2, err := s.AddArticle(ctx, "Different title", "https://example.com/story", "Other Outlet", topic.Housing)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	a, err := s.ArticleByID(ctx, id1)
	require.NoError(t, err)
	require.Equal(t, "Original title", a.Title)
	require.Equal(t, "Example News", a.Outlet)
	require.Equal(t, topic.Health, a.Topic)
}

func TestAddArticleNormalizesURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.AddArticle(ctx, "A", "https://Example.COM/story/", "", topic.Health)
	require.NoError(t, err)
	id2, err := s.AddArticle(ctx, "B", "https://example.com/story#section", "", topic.Health)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	// Different path is a different article.
	id3, err := s.AddArticle(ctx, "C", "https://example.com/other", "", topic.Health)
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestArticleByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ArticleByID(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFreshArticlesExcludesSentAndExcluded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.UpsertSubscriber(ctx, "reader@example.com", topic.Health, topic.Housing, topic.Education)
	require.NoError(t, err)

	a1, err := s.AddArticle(ctx, "Health story one", "https://example.com/h1", "", topic.Health)
	require.NoError(t, err)
	a2, err := s.AddArticle(ctx, "Health story two", "https://example.com/h2", "", topic.Health)
	require.NoError(t, err)
	a3, err := s.AddArticle(ctx, "Health story three", "https://example.com/h3", "", topic.Health)
	require.NoError(t, err)

	campaignID, err := s.CreateCampaign(ctx, "manual", "")
	require.NoError(t, err)
	require.NoError(t, s.RecordSend(ctx, sub.ID, a1, campaignID))
	require.NoError(t, s.SetArticleExcluded(ctx, a2, true))

	byTopic, err := s.FreshArticles(ctx, sub.ID, []topic.Topic{topic.Health, topic.Housing}, 10)
	require.NoError(t, err)

	require.Len(t, byTopic[topic.Health], 1)
	require.Equal(t, a3, byTopic[topic.Health][0].ID)

	// Topic without matches maps to an empty list, not an error.
	require.Empty(t, byTopic[topic.Housing])
}

func TestFreshArticlesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Equal timestamps fall back to id order: later inserts are newer.
	var ids []int64
	for _, u := range []string{"https://e.com/1", "https://e.com/2", "https://e.com/3"} {
		id, err := s.AddArticle(ctx, "Story "+u, u, "", topic.Energy)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	byTopic, err := s.FreshArticles(ctx, 1, []topic.Topic{topic.Energy}, 10)
	require.NoError(t, err)

	got := byTopic[topic.Energy]
	require.Len(t, got, 3)
	require.Equal(t, ids[2], got[0].ID)
	require.Equal(t, ids[1], got[1].ID)
	require.Equal(t, ids[0], got[2].ID)
}

func TestFreshArticlesRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.AddArticle(ctx, "Story", "https://e.com/"+string(rune('a'+i)), "", topic.Health)
		require.NoError(t, err)
	}

	byTopic, err := s.FreshArticles(ctx, 1, []topic.Topic{topic.Health}, 2)
	require.NoError(t, err)
	require.Len(t, byTopic[topic.Health], 2)
}

func TestRecordSendIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.UpsertSubscriber(ctx, "reader@example.com", topic.Health, topic.Housing, topic.Education)
	require.NoError(t, err)
	articleID, err := s.AddArticle(ctx, "Story", "https://e.com/s", "", topic.Health)
	require.NoError(t, err)
	campaignID, err := s.CreateCampaign(ctx, "manual", "")
	require.NoError(t, err)

	sent, err := s.HasBeenSent(ctx, sub.ID, articleID)
	require.NoError(t, err)
	require.False(t, sent)

	require.NoError(t, s.RecordSend(ctx, sub.ID, articleID, campaignID))
	// Re-recording the same pair is a silent no-op.
	require.NoError(t, s.RecordSend(ctx, sub.ID, articleID, campaignID))

	otherCampaign, err := s.CreateCampaign(ctx, "manual", "")
	require.NoError(t, err)
	require.NoError(t, s.RecordSend(ctx, sub.ID, articleID, otherCampaign))

	sent, err = s.HasBeenSent(ctx, sub.ID, articleID)
	require.NoError(t, err)
	require.True(t, sent)
}

func TestRecordSendsBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.UpsertSubscriber(ctx, "reader@example.com", topic.Health, topic.Housing, topic.Education)
	require.NoError(t, err)
	campaignID, err := s.CreateCampaign(ctx, "scheduled", "")
	require.NoError(t, err)

	var ids []int64
	for _, u := range []string{"https://e.com/1", "https://e.com/2"} {
		id, err := s.AddArticle(ctx, "Story", u, "", topic.Health)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, s.RecordSends(ctx, sub.ID, campaignID, ids))
	// Retry of the same batch must be safe.
	require.NoError(t, s.RecordSends(ctx, sub.ID, campaignID, ids))

	for _, id := range ids {
		sent, err := s.HasBeenSent(ctx, sub.ID, id)
		require.NoError(t, err)
		require.True(t, sent)
	}
}

func TestUpsertSubscriberReactivates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.UpsertSubscriber(ctx, "reader@example.com", topic.Health, topic.Housing, topic.Education)
	require.NoError(t, err)
	require.True(t, sub.Active)
	require.Equal(t, []topic.Topic{topic.Health, topic.Housing, topic.Education}, sub.Topics())

	require.NoError(t, s.DeactivateSubscriber(ctx, "reader@example.com"))

	subs, err := s.ListActiveSubscribers(ctx)
	require.NoError(t, err)
	require.Empty(t, subs)

	// Re-subscribing with new topics reactivates, keeping the same id.
	again, err := s.UpsertSubscriber(ctx, "reader@example.com", topic.Energy, topic.Housing, topic.Education)
	require.NoError(t, err)
	require.Equal(t, sub.ID, again.ID)
	require.True(t, again.Active)
	require.Equal(t, topic.Energy, again.Topic1)
}

func TestDeactivateSubscriberNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeactivateSubscriber(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPruneArticlesKeepsSent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.UpsertSubscriber(ctx, "reader@example.com", topic.Health, topic.Housing, topic.Education)
	require.NoError(t, err)

	sentID, err := s.AddArticle(ctx, "Sent story", "https://e.com/sent", "", topic.Health)
	require.NoError(t, err)
	unsentID, err := s.AddArticle(ctx, "Unsent story", "https://e.com/unsent", "", topic.Health)
	require.NoError(t, err)

	campaignID, err := s.CreateCampaign(ctx, "manual", "")
	require.NoError(t, err)
	require.NoError(t, s.RecordSend(ctx, sub.ID, sentID, campaignID))

	n, err := s.PruneArticles(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.ArticleByID(ctx, unsentID)
	require.ErrorIs(t, err, ErrNotFound)

	kept, err := s.ArticleByID(ctx, sentID)
	require.NoError(t, err)
	require.Equal(t, "Sent story", kept.Title)
}

func TestMarkCampaignSent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateCampaign(ctx, "scheduled", "weekly run")
	require.NoError(t, err)
	require.NoError(t, s.MarkCampaignSent(ctx, id, 10, 8, 2))

	campaigns, err := s.RecentCampaigns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	require.Equal(t, "sent", campaigns[0].Status)
	require.Equal(t, 10, campaigns[0].TotalRecipients)
	require.Equal(t, 8, campaigns[0].SuccessfulSends)
	require.Equal(t, 2, campaigns[0].FailedSends)
	require.True(t, campaigns[0].SentAt.Valid)
}

func TestSettingsSeededAndUpdatable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.Setting(ctx, SettingFallbackEnabled, "0")
	require.NoError(t, err)
	require.Equal(t, "1", v)

	require.NoError(t, s.SetSetting(ctx, SettingFallbackEnabled, "0"))
	v, err = s.Setting(ctx, SettingFallbackEnabled, "1")
	require.NoError(t, err)
	require.Equal(t, "0", v)

	v, err = s.Setting(ctx, "missing_key", "fallback")
	require.NoError(t, err)
	require.Equal(t, "fallback", v)
}

func TestURLHashStability(t *testing.T) {
	require.Equal(t, URLHash("https://example.com/a"), URLHash("https://EXAMPLE.com/a/"))
	require.NotEqual(t, URLHash("https://example.com/a"), URLHash("https://example.com/b"))
}
