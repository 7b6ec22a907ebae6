package store

const schema = `
CREATE TABLE IF NOT EXISTS articles (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    url_hash   TEXT UNIQUE NOT NULL,
    title      TEXT NOT NULL,
    url        TEXT NOT NULL,
    outlet     TEXT NOT NULL DEFAULT '',
    topic      TEXT NOT NULL,
    scraped_at DATETIME NOT NULL,
    excluded   BOOLEAN NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_articles_topic ON articles(topic);
CREATE INDEX IF NOT EXISTS idx_articles_scraped_at ON articles(scraped_at);

CREATE TABLE IF NOT EXISTS subscribers (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    email      TEXT UNIQUE NOT NULL,
    topic_1    TEXT NOT NULL,
    topic_2    TEXT NOT NULL,
    topic_3    TEXT NOT NULL,
    active     BOOLEAN NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS campaigns (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    kind             TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'pending',
    scheduled_for    DATETIME,
    sent_at          DATETIME,
    total_recipients INTEGER NOT NULL DEFAULT 0,
    successful_sends INTEGER NOT NULL DEFAULT 0,
    failed_sends     INTEGER NOT NULL DEFAULT 0,
    notes            TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS article_sends (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    subscriber_id INTEGER NOT NULL REFERENCES subscribers(id),
    article_id    INTEGER NOT NULL REFERENCES articles(id),
    campaign_id   INTEGER NOT NULL REFERENCES campaigns(id),
    sent_at       DATETIME NOT NULL,
    UNIQUE(subscriber_id, article_id)
);

CREATE INDEX IF NOT EXISTS idx_sends_subscriber ON article_sends(subscriber_id);
CREATE INDEX IF NOT EXISTS idx_sends_campaign ON article_sends(campaign_id);

CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at DATETIME
);

INSERT OR IGNORE INTO settings (key, value) VALUES
    ('fallback_enabled', '1'),
    ('min_articles_per_category', '1'),
    ('email_schedule_day', '2'),
    ('email_schedule_hour', '9'),
    ('email_schedule_minute', '0');
`
