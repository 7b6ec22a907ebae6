package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cmallory/storydigest/pkg/topic"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Feeds     []FeedConfig    `yaml:"feeds"`
	Selection SelectionConfig `yaml:"selection"`
	Email     EmailConfig     `yaml:"email"`
	Server    ServerConfig    `yaml:"server"`
	Retention RetentionConfig `yaml:"retention"`
	Filter    FilterConfig    `yaml:"filter"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig configures the scrape interval and the weekly send slot.
type ScheduleConfig struct {
	ScrapeInterval string `yaml:"scrape_interval"`
	SendWeekday    int    `yaml:"send_weekday"` // 0 = Sunday
	SendHour       int    `yaml:"send_hour"`
	SendMinute     int    `yaml:"send_minute"`
}

// ParseScrapeInterval returns the scrape interval as time.Duration.
func (s ScheduleConfig) ParseScrapeInterval() time.Duration {
	d, err := time.ParseDuration(s.ScrapeInterval)
	if err != nil {
		return 12 * time.Hour
	}
	return d
}

// ScraperConfig configures the Story Tracker scraper.
type ScraperConfig struct {
	Enabled     bool     `yaml:"enabled"`
	BaseURL     string   `yaml:"base_url"`
	UserAgent   string   `yaml:"user_agent"`
	Delay       string   `yaml:"delay"`
	Timeout     string   `yaml:"timeout"`
	MaxArticles int      `yaml:"max_articles"`
	Topics      []string `yaml:"topics"` // empty means all
}

// ParseDelay returns the inter-request delay as time.Duration.
func (s ScraperConfig) ParseDelay() time.Duration {
	d, err := time.ParseDuration(s.Delay)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// ParseTimeout returns the request timeout as time.Duration.
func (s ScraperConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// FeedConfig is a single topic-tagged RSS feed.
type FeedConfig struct {
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Topic string `yaml:"topic"`
}

// SelectionConfig configures the article selector.
type SelectionConfig struct {
	ArticlesPerTopic int `yaml:"articles_per_topic"`
	FetchLimit       int `yaml:"fetch_limit"`
	MaxFallbacks     int `yaml:"max_fallbacks"`
}

// EmailConfig configures newsletter output. When WebhookURL is set,
// rendered newsletters are posted there instead of being written to
// OutputDir.
type EmailConfig struct {
	OutputDir     string `yaml:"output_dir"`
	FromName      string `yaml:"from_name"`
	FromAddress   string `yaml:"from_address"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RetentionConfig configures article retention cleanup.
type RetentionConfig struct {
	Days int `yaml:"days"`
}

// FilterConfig configures content filtering for collectors.
type FilterConfig struct {
	ExcludeKeywords []string `yaml:"exclude_keywords"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./storydigest.db"},
		Schedule: ScheduleConfig{
			ScrapeInterval: "12h",
			SendWeekday:    2, // Tuesday
			SendHour:       9,
			SendMinute:     0,
		},
		Scraper: ScraperConfig{
			Enabled:     true,
			BaseURL:     "https://storytracker.solutionsjournalism.org/",
			UserAgent:   "storydigest/1.0 (+newsletter digest bot)",
			Delay:       "500ms",
			Timeout:     "15s",
			MaxArticles: 10,
		},
		Selection: SelectionConfig{
			ArticlesPerTopic: 1,
			FetchLimit:       10,
			MaxFallbacks:     topic.DefaultMaxFallbacks,
		},
		Email: EmailConfig{
			OutputDir:   "emails_output",
			FromName:    "Story Digest",
			FromAddress: "stories@example.edu",
		},
		Server:    ServerConfig{Port: 8080},
		Retention: RetentionConfig{Days: 90},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := validateFeeds(cfg.Feeds); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func validateFeeds(feeds []FeedConfig) error {
	for _, f := range feeds {
		if !topic.Known(topic.Topic(f.Topic)) {
			return fmt.Errorf("feed %s: unknown topic %q", f.Name, f.Topic)
		}
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STORYDIGEST_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("STORYDIGEST_OUTPUT_DIR"); v != "" {
		cfg.Email.OutputDir = v
	}
	if v := os.Getenv("STORYDIGEST_BASE_URL"); v != "" {
		cfg.Scraper.BaseURL = v
	}
	if v := os.Getenv("STORYDIGEST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}
