package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cmallory/storydigest/pkg/topic"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a subscriber, article or campaign id does
// not exist. Callers are expected to check with errors.Is.
var ErrNotFound = errors.New("not found")

// Admin setting keys. Seeded with defaults by the schema.
const (
	SettingFallbackEnabled     = "fallback_enabled"
	SettingMinArticlesPerTopic = "min_articles_per_category"
	SettingScheduleDay         = "email_schedule_day"
	SettingScheduleHour        = "email_schedule_hour"
	SettingScheduleMinute      = "email_schedule_minute"
)

// Article is a scraped solutions story. Two submissions with the same
// normalized URL are the same article: URLHash is unique and the first
// write wins on metadata.
type Article struct {
	ID        int64       `db:"id" json:"id"`
	URLHash   string      `db:"url_hash" json:"-"`
	Title     string      `db:"title" json:"title"`
	URL       string      `db:"url" json:"url"`
	Outlet    string      `db:"outlet" json:"outlet"`
	Topic     topic.Topic `db:"topic" json:"topic"`
	ScrapedAt time.Time   `db:"scraped_at" json:"scraped_at"`
	Excluded  bool        `db:"excluded" json:"excluded"`
}

// Subscriber holds a newsletter recipient and their three chosen topics.
// Active=false is a soft delete.
type Subscriber struct {
	ID        int64       `db:"id" json:"id"`
	Email     string      `db:"email" json:"email"`
	Topic1    topic.Topic `db:"topic_1" json:"topic_1"`
	Topic2    topic.Topic `db:"topic_2" json:"topic_2"`
	Topic3    topic.Topic `db:"topic_3" json:"topic_3"`
	Active    bool        `db:"active" json:"active"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// Topics returns the subscriber's topics in signup order.
func (s *Subscriber) Topics() []topic.Topic {
	return []topic.Topic{s.Topic1, s.Topic2, s.Topic3}
}

// Campaign is one batch send to all active subscribers.
type Campaign struct {
	ID              int64        `db:"id" json:"id"`
	Kind            string       `db:"kind" json:"kind"` // "scheduled" or "manual"
	Status          string       `db:"status" json:"status"`
	ScheduledFor    sql.NullTime `db:"scheduled_for" json:"-"`
	SentAt          sql.NullTime `db:"sent_at" json:"sent_at,omitempty"`
	TotalRecipients int          `db:"total_recipients" json:"total_recipients"`
	SuccessfulSends int          `db:"successful_sends" json:"successful_sends"`
	FailedSends     int          `db:"failed_sends" json:"failed_sends"`
	Notes           string       `db:"notes" json:"notes"`
}

// ArticleListOpts controls article listing.
type ArticleListOpts struct {
	Topic           topic.Topic
	Limit           int
	IncludeExcluded bool
}

// Store is the persistence interface.
type Store interface {
	AddArticle(ctx context.Context, title, rawURL, outlet string, t topic.Topic) (int64, error)
	ArticleByID(ctx context.Context, id int64) (*Article, error)
	ListArticles(ctx context.Context, opts ArticleListOpts) ([]Article, error)
	SetArticleExcluded(ctx context.Context, id int64, excluded bool) error
	PruneArticles(ctx context.Context, olderThan time.Time) (int64, error)

	UpsertSubscriber(ctx context.Context, email string, t1, t2, t3 topic.Topic) (*Subscriber, error)
	SubscriberByEmail(ctx context.Context, email string) (*Subscriber, error)
	ListActiveSubscribers(ctx context.Context) ([]Subscriber, error)
	DeactivateSubscriber(ctx context.Context, email string) error

	FreshArticles(ctx context.Context, subscriberID int64, topics []topic.Topic, perTopicLimit int) (map[topic.Topic][]Article, error)

	CreateCampaign(ctx context.Context, kind, notes string) (int64, error)
	MarkCampaignSent(ctx context.Context, id int64, recipients, successful, failed int) error
	RecentCampaigns(ctx context.Context, limit int) ([]Campaign, error)

	RecordSend(ctx context.Context, subscriberID, articleID, campaignID int64) error
	RecordSends(ctx context.Context, subscriberID, campaignID int64, articleIDs []int64) error
	HasBeenSent(ctx context.Context, subscriberID, articleID int64) (bool, error)

	Setting(ctx context.Context, key, def string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// URLHash returns the stable digest used to deduplicate articles: the
// sha-256 of the normalized URL (lowercased scheme and host, fragment
// stripped, trailing slash trimmed).
func URLHash(rawURL string) string {
	normalized := strings.TrimSpace(rawURL)
	if u, err := url.Parse(normalized); err == nil && u.Host != "" {
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		u.Fragment = ""
		u.Path = strings.TrimRight(u.Path, "/")
		normalized = u.String()
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// AddArticle inserts an article, returning its id. Inserting a URL whose
// hash already exists returns the existing id without touching the stored
// row, whatever the new title/outlet/topic say.
func (s *SQLiteStore) AddArticle(ctx context.Context, title, rawURL, outlet string, t topic.Topic) (int64, error) {
	hash := URLHash(rawURL)

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO articles (url_hash, title, url, outlet, topic, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, hash, title, rawURL, outlet, t, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert article %q: %w", title, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("insert article %q: %w", title, err)
		}
		return id, nil
	}

	var id int64
	if err := s.db.GetContext(ctx, &id, "SELECT id FROM articles WHERE url_hash = ?", hash); err != nil {
		return 0, fmt.Errorf("lookup existing article: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) ArticleByID(ctx context.Context, id int64) (*Article, error) {
	var a Article
	err := s.db.GetContext(ctx, &a, "SELECT * FROM articles WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get article %d: %w", id, err)
	}
	return &a, nil
}

func (s *SQLiteStore) ListArticles(ctx context.Context, opts ArticleListOpts) ([]Article, error) {
	query := "SELECT * FROM articles WHERE 1=1"
	var args []any

	if opts.Topic != "" {
		query += " AND topic = ?"
		args = append(args, opts.Topic)
	}
	if !opts.IncludeExcluded {
		query += " AND excluded = 0"
	}

	query += " ORDER BY scraped_at DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var articles []Article
	if err := s.db.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return articles, nil
}

func (s *SQLiteStore) SetArticleExcluded(ctx context.Context, id int64, excluded bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE articles SET excluded = ? WHERE id = ?", excluded, id)
	if err != nil {
		return fmt.Errorf("set article %d excluded: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return nil
}

// PruneArticles deletes articles scraped before olderThan that were never
// sent to anyone. Sent articles stay: the send ledger references them.
func (s *SQLiteStore) PruneArticles(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM articles
		WHERE scraped_at < ?
		AND id NOT IN (SELECT article_id FROM article_sends)
	`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune articles: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UpsertSubscriber creates or updates a subscriber by email and reactivates
// them if they had unsubscribed.
func (s *SQLiteStore) UpsertSubscriber(ctx context.Context, email string, t1, t2, t3 topic.Topic) (*Subscriber, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers (email, topic_1, topic_2, topic_3, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			topic_1 = excluded.topic_1,
			topic_2 = excluded.topic_2,
			topic_3 = excluded.topic_3,
			active = 1,
			updated_at = excluded.updated_at
	`, email, t1, t2, t3, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert subscriber %s: %w", email, err)
	}
	return s.SubscriberByEmail(ctx, email)
}

func (s *SQLiteStore) SubscriberByEmail(ctx context.Context, email string) (*Subscriber, error) {
	var sub Subscriber
	err := s.db.GetContext(ctx, &sub, "SELECT * FROM subscribers WHERE email = ?", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscriber %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber %s: %w", email, err)
	}
	return &sub, nil
}

func (s *SQLiteStore) ListActiveSubscribers(ctx context.Context) ([]Subscriber, error) {
	var subs []Subscriber
	err := s.db.SelectContext(ctx, &subs,
		"SELECT * FROM subscribers WHERE active = 1 ORDER BY email")
	if err != nil {
		return nil, fmt.Errorf("list active subscribers: %w", err)
	}
	return subs, nil
}

func (s *SQLiteStore) DeactivateSubscriber(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE subscribers SET active = 0, updated_at = ? WHERE email = ?",
		time.Now().UTC(), email)
	if err != nil {
		return fmt.Errorf("deactivate subscriber %s: %w", email, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subscriber %s: %w", email, ErrNotFound)
	}
	return nil
}

// FreshArticles returns, per topic, articles not excluded and not yet sent
// to the subscriber, newest first. Ties on scraped_at break by id so the
// order is fully deterministic. Topics with no matches map to empty lists.
func (s *SQLiteStore) FreshArticles(ctx context.Context, subscriberID int64, topics []topic.Topic, perTopicLimit int) (map[topic.Topic][]Article, error) {
	if perTopicLimit <= 0 {
		perTopicLimit = 10
	}

	byTopic := make(map[topic.Topic][]Article, len(topics))
	for _, t := range topics {
		if _, ok := byTopic[t]; ok {
			continue
		}

		var articles []Article
		err := s.db.SelectContext(ctx, &articles, `
			SELECT a.*
			FROM articles a
			LEFT JOIN article_sends s ON a.id = s.article_id AND s.subscriber_id = ?
			WHERE a.topic = ?
			AND a.excluded = 0
			AND s.id IS NULL
			ORDER BY a.scraped_at DESC, a.id DESC
			LIMIT ?
		`, subscriberID, t, perTopicLimit)
		if err != nil {
			return nil, fmt.Errorf("fresh articles for topic %s: %w", t, err)
		}
		byTopic[t] = articles
	}
	return byTopic, nil
}

func (s *SQLiteStore) CreateCampaign(ctx context.Context, kind, notes string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO campaigns (kind, status, notes) VALUES (?, 'pending', ?)",
		kind, notes)
	if err != nil {
		return 0, fmt.Errorf("create campaign: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create campaign: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) MarkCampaignSent(ctx context.Context, id int64, recipients, successful, failed int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sent', sent_at = ?, total_recipients = ?, successful_sends = ?, failed_sends = ?
		WHERE id = ?
	`, time.Now().UTC(), recipients, successful, failed, id)
	if err != nil {
		return fmt.Errorf("mark campaign %d sent: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("campaign %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) RecentCampaigns(ctx context.Context, limit int) ([]Campaign, error) {
	if limit <= 0 {
		limit = 10
	}
	var campaigns []Campaign
	err := s.db.SelectContext(ctx, &campaigns, `
		SELECT * FROM campaigns
		ORDER BY COALESCE(sent_at, scheduled_for) DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent campaigns: %w", err)
	}
	return campaigns, nil
}

// RecordSend marks an article as sent to a subscriber. Recording a pair
// that already exists is a silent no-op, so retried campaign runs are safe.
func (s *SQLiteStore) RecordSend(ctx context.Context, subscriberID, articleID, campaignID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO article_sends (subscriber_id, article_id, campaign_id, sent_at)
		VALUES (?, ?, ?, ?)
	`, subscriberID, articleID, campaignID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record send sub=%d art=%d: %w", subscriberID, articleID, err)
	}
	return nil
}

// RecordSends records one subscriber's whole batch in a single transaction
// so a crash mid-subscriber commits all of it or none of it.
func (s *SQLiteStore) RecordSends(ctx context.Context, subscriberID, campaignID int64, articleIDs []int64) error {
	if len(articleIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record sends: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, articleID := range articleIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO article_sends (subscriber_id, article_id, campaign_id, sent_at)
			VALUES (?, ?, ?, ?)
		`, subscriberID, articleID, campaignID, now)
		if err != nil {
			return fmt.Errorf("record send sub=%d art=%d: %w", subscriberID, articleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record sends sub=%d: %w", subscriberID, err)
	}
	return nil
}

func (s *SQLiteStore) HasBeenSent(ctx context.Context, subscriberID, articleID int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM article_sends WHERE subscriber_id = ? AND article_id = ?",
		subscriberID, articleID)
	if err != nil {
		return false, fmt.Errorf("has been sent sub=%d art=%d: %w", subscriberID, articleID, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Setting(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
