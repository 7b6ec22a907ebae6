package scheduler

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cmallory/storydigest/internal/store"
	"github.com/cmallory/storydigest/pkg/campaign"
	"github.com/cmallory/storydigest/pkg/source"
)

// Scheduler runs periodic scraping and the weekly newsletter send.
type Scheduler struct {
	store      store.Store
	sources    []source.Source
	runner     *campaign.Runner
	scrapeInt  time.Duration
	sendDay    time.Weekday
	sendHour   int
	sendMinute int
}

// New creates a new scheduler. The send slot arguments are defaults; the
// admin settings table overrides them at each arm so schedule changes take
// effect without a restart.
func New(
	s store.Store,
	sources []source.Source,
	runner *campaign.Runner,
	scrapeInt time.Duration,
	sendDay time.Weekday,
	sendHour, sendMinute int,
) *Scheduler {
	if scrapeInt == 0 {
		scrapeInt = 12 * time.Hour
	}
	return &Scheduler{
		store:      s,
		sources:    sources,
		runner:     runner,
		scrapeInt:  scrapeInt,
		sendDay:    sendDay,
		sendHour:   sendHour,
		sendMinute: sendMinute,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	scrapeTicker := time.NewTicker(s.scrapeInt)
	defer scrapeTicker.Stop()

	// Scrape immediately on start so the first send has content.
	fmt.Fprintln(os.Stderr, "scheduler: initial scrape...")
	s.scrapeAll(ctx)

	next := s.nextSendTime(ctx, time.Now())
	sendTimer := time.NewTimer(time.Until(next))
	defer sendTimer.Stop()

	fmt.Fprintf(os.Stderr, "scheduler: running (scrape every %s, next send %s)\n",
		s.scrapeInt, next.Format(time.RFC3339))

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "scheduler: stopped")
			return ctx.Err()
		case <-scrapeTicker.C:
			fmt.Fprintln(os.Stderr, "scheduler: scraping...")
			s.scrapeAll(ctx)
		case <-sendTimer.C:
			fmt.Fprintln(os.Stderr, "scheduler: sending scheduled campaign...")
			summary, err := s.runner.Run(ctx, "scheduled")
			if err != nil {
				fmt.Fprintf(os.Stderr, "  campaign error: %v\n", err)
			} else {
				fmt.Fprintf(os.Stderr, "  campaign %d: %d sent, %d failed\n",
					summary.CampaignID, summary.SuccessfulSends, summary.FailedSends)
			}
			next = s.nextSendTime(ctx, time.Now())
			sendTimer.Reset(time.Until(next))
			fmt.Fprintf(os.Stderr, "scheduler: next send %s\n", next.Format(time.RFC3339))
		}
	}
}

func (s *Scheduler) scrapeAll(ctx context.Context) {
	total := 0
	for _, src := range s.sources {
		stories, err := src.Collect(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s error: %v\n", src.Name(), err)
			continue
		}

		added := 0
		for _, st := range stories {
			if _, err := s.store.AddArticle(ctx, st.Title, st.URL, st.Outlet, st.Topic); err != nil {
				fmt.Fprintf(os.Stderr, "  %s store error: %v\n", src.Name(), err)
				continue
			}
			added++
		}

		fmt.Fprintf(os.Stderr, "  %s: %d stories\n", src.Name(), added)
		total += added
	}
	fmt.Fprintf(os.Stderr, "  total: %d stories\n", total)
}

// nextSendTime computes the next occurrence of the weekly send slot,
// preferring the admin settings over the configured defaults.
func (s *Scheduler) nextSendTime(ctx context.Context, now time.Time) time.Time {
	day := int(s.sendDay)
	hour, minute := s.sendHour, s.sendMinute

	if v, err := s.store.Setting(ctx, store.SettingScheduleDay, ""); err == nil && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 6 {
			day = n
		}
	}
	if v, err := s.store.Setting(ctx, store.SettingScheduleHour, ""); err == nil && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 23 {
			hour = n
		}
	}
	if v, err := s.store.Setting(ctx, store.SettingScheduleMinute, ""); err == nil && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 59 {
			minute = n
		}
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	daysAhead := (day - int(now.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, daysAhead)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}
