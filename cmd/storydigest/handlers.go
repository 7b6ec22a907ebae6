package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cmallory/storydigest/internal/config"
	"github.com/cmallory/storydigest/internal/scheduler"
	"github.com/cmallory/storydigest/internal/store"
	"github.com/cmallory/storydigest/pkg/campaign"
	"github.com/cmallory/storydigest/pkg/email"
	"github.com/cmallory/storydigest/pkg/selector"
	"github.com/cmallory/storydigest/pkg/server"
	"github.com/cmallory/storydigest/pkg/source"
	"github.com/cmallory/storydigest/pkg/topic"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildSources(cfg *config.Config, onlyTopics []topic.Topic) []source.Source {
	filter := source.NewFilter(cfg.Filter.ExcludeKeywords)

	var sources []source.Source

	if cfg.Scraper.Enabled {
		topics := onlyTopics
		if len(topics) == 0 {
			for _, raw := range cfg.Scraper.Topics {
				topics = append(topics, topic.Topic(raw))
			}
		}
		sources = append(sources, source.NewStoryTracker(source.StoryTrackerOpts{
			BaseURL:     cfg.Scraper.BaseURL,
			UserAgent:   cfg.Scraper.UserAgent,
			Delay:       cfg.Scraper.ParseDelay(),
			Timeout:     cfg.Scraper.ParseTimeout(),
			MaxPerTopic: cfg.Scraper.MaxArticles,
			Topics:      topics,
			Filter:      filter,
		}))
	}

	if len(cfg.Feeds) > 0 {
		feeds := make([]source.Feed, 0, len(cfg.Feeds))
		for _, f := range cfg.Feeds {
			t := topic.Topic(f.Topic)
			if len(onlyTopics) > 0 && !containsTopic(onlyTopics, t) {
				continue
			}
			feeds = append(feeds, source.Feed{Name: f.Name, URL: f.URL, Topic: t})
		}
		if len(feeds) > 0 {
			sources = append(sources, source.NewRSS(feeds, filter))
		}
	}

	return sources
}

func buildRunner(cfg *config.Config, db store.Store) (*campaign.Runner, error) {
	graph := topic.DefaultGraph(cfg.Selection.MaxFallbacks)
	sel := selector.New(db, graph, cfg.Selection.FetchLimit)

	renderer, err := email.NewRenderer(cfg.Email.FromName)
	if err != nil {
		return nil, err
	}

	var deliverer email.Deliverer
	if cfg.Email.WebhookURL != "" {
		deliverer = email.NewWebhookDeliverer(cfg.Email.WebhookURL, cfg.Email.WebhookSecret)
	} else {
		deliverer, err = email.NewFileDeliverer(cfg.Email.OutputDir)
		if err != nil {
			return nil, err
		}
	}

	return campaign.New(db, sel, renderer, deliverer, cfg.Selection.ArticlesPerTopic, nil), nil
}

func runScrape(rawTopics []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var topics []topic.Topic
	for _, raw := range rawTopics {
		t := topic.Topic(strings.TrimSpace(raw))
		if !topic.Known(t) {
			return fmt.Errorf("unknown topic %q", raw)
		}
		topics = append(topics, t)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	total := 0

	for _, src := range buildSources(cfg, topics) {
		fmt.Fprintf(os.Stderr, "collecting from %s...\n", src.Name())
		stories, err := src.Collect(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  error: %v\n", err)
			continue
		}

		added := 0
		for _, st := range stories {
			if _, err := db.AddArticle(ctx, st.Title, st.URL, st.Outlet, st.Topic); err != nil {
				fmt.Fprintf(os.Stderr, "  store error: %v\n", err)
				continue
			}
			added++
		}

		fmt.Fprintf(os.Stderr, "  collected %d stories\n", added)
		total += added
	}

	fmt.Fprintf(os.Stderr, "\ntotal: %d stories\n", total)
	return nil
}

func runSend(kind string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	runner, err := buildRunner(cfg, db)
	if err != nil {
		return err
	}

	summary, err := runner.Run(context.Background(), kind)
	if err != nil {
		return fmt.Errorf("run campaign: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CAMPAIGN\tRECIPIENTS\tSENT\tFAILED")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\n",
		summary.CampaignID, summary.TotalSubscribers,
		summary.SuccessfulSends, summary.FailedSends)
	return w.Flush()
}

func runPreview(subscriberEmail, outPath string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	runner, err := buildRunner(cfg, db)
	if err != nil {
		return err
	}

	html, err := runner.Preview(context.Background(), subscriberEmail)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}

	if outPath != "" {
		if err := os.WriteFile(outPath, []byte(html), 0o644); err != nil {
			return fmt.Errorf("write preview %s: %w", outPath, err)
		}
		fmt.Fprintf(os.Stderr, "preview written to %s\n", outPath)
		return nil
	}

	fmt.Println(html)
	return nil
}

func runSubscribe(subscriberEmail string, rawTopics []string) error {
	if len(rawTopics) != 3 {
		return fmt.Errorf("exactly three topics required, got %d", len(rawTopics))
	}

	topics := make([]topic.Topic, 3)
	seen := make(map[topic.Topic]bool, 3)
	for i, raw := range rawTopics {
		t := topic.Topic(strings.TrimSpace(raw))
		if !topic.Known(t) {
			return fmt.Errorf("unknown topic %q (see available topics in docs)", raw)
		}
		if seen[t] {
			return fmt.Errorf("topics must be distinct, %q repeats", raw)
		}
		seen[t] = true
		topics[i] = t
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	sub, err := db.UpsertSubscriber(context.Background(),
		strings.ToLower(strings.TrimSpace(subscriberEmail)), topics[0], topics[1], topics[2])
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	fmt.Fprintf(os.Stderr, "subscribed %s to %s, %s, %s\n",
		sub.Email, sub.Topic1, sub.Topic2, sub.Topic3)
	return nil
}

func runUnsubscribe(subscriberEmail string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	email := strings.ToLower(strings.TrimSpace(subscriberEmail))
	if err := db.DeactivateSubscriber(context.Background(), email); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}

	fmt.Fprintf(os.Stderr, "unsubscribed %s\n", email)
	return nil
}

func runSettingsGet(key string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	value, err := db.Setting(context.Background(), key, "")
	if err != nil {
		return fmt.Errorf("get setting: %w", err)
	}

	fmt.Println(value)
	return nil
}

func runSettingsSet(key, value string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := db.SetSetting(context.Background(), key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}

	fmt.Fprintf(os.Stderr, "%s = %s\n", key, value)
	return nil
}

func runPrune(days int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if days <= 0 {
		days = cfg.Retention.Days
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	cutoff := time.Now().AddDate(0, 0, -days)
	n, err := db.PruneArticles(context.Background(), cutoff)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}

	fmt.Fprintf(os.Stderr, "pruned %d unsent articles older than %d days\n", n, days)
	return nil
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	runner, err := buildRunner(cfg, db)
	if err != nil {
		return err
	}

	srv := server.New(db, runner, buildSources(cfg, nil), port)
	return srv.ListenAndServe()
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	runner, err := buildRunner(cfg, db)
	if err != nil {
		return err
	}

	sources := buildSources(cfg, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(db, sources, runner,
		cfg.Schedule.ParseScrapeInterval(),
		time.Weekday(cfg.Schedule.SendWeekday),
		cfg.Schedule.SendHour,
		cfg.Schedule.SendMinute,
	)

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "scheduler error: %v\n", err)
		}
	}()

	srv := server.New(db, runner, sources, port)
	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nshutting down...")
	}()

	return srv.ListenAndServe()
}

func containsTopic(topics []topic.Topic, t topic.Topic) bool {
	for _, x := range topics {
		if x == t {
			return true
		}
	}
	return false
}
