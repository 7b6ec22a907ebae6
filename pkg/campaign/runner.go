// Package campaign runs newsletter campaigns: one sequential pass over all
// active subscribers, selecting, recording and delivering per subscriber.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmallory/storydigest/internal/store"
	"github.com/cmallory/storydigest/pkg/email"
	"github.com/cmallory/storydigest/pkg/selector"
)

// Summary reports the outcome of one campaign run. Partial success is
// expected: one subscriber failing never aborts the run.
type Summary struct {
	CampaignID       int64     `json:"campaign_id"`
	TotalSubscribers int       `json:"total_subscribers"`
	SuccessfulSends  int       `json:"successful_sends"`
	FailedSends      int       `json:"failed_sends"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Runner executes campaigns and previews.
type Runner struct {
	store     store.Store
	selector  *selector.Selector
	renderer  *email.Renderer
	deliverer email.Deliverer
	perTopic  int
	log       *slog.Logger
}

// New creates a campaign runner. perTopic <= 0 defers to the
// min_articles_per_category admin setting at selection time. A nil logger
// falls back to slog.Default().
func New(st store.Store, sel *selector.Selector, r *email.Renderer, d email.Deliverer, perTopic int, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		store:     st,
		selector:  sel,
		renderer:  r,
		deliverer: d,
		perTopic:  perTopic,
		log:       log,
	}
}

// Run sends a campaign to every active subscriber. Send records are
// committed per subscriber, before rendering, so a retried run after a
// crash can never deliver the same article to the same subscriber twice.
func (r *Runner) Run(ctx context.Context, kind string) (*Summary, error) {
	subs, err := r.store.ListActiveSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("no active subscribers")
	}

	campaignID, err := r.store.CreateCampaign(ctx, kind,
		fmt.Sprintf("Campaign sent to %d subscribers", len(subs)))
	if err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	summary := &Summary{CampaignID: campaignID, TotalSubscribers: len(subs)}

	for i := range subs {
		if err := r.sendOne(ctx, &subs[i], campaignID); err != nil {
			summary.FailedSends++
			r.log.Error("send failed",
				"campaign", campaignID, "subscriber", subs[i].Email, "err", err)
			continue
		}
		summary.SuccessfulSends++
	}

	if summary.SuccessfulSends > 0 {
		if err := r.store.MarkCampaignSent(ctx, campaignID,
			summary.TotalSubscribers, summary.SuccessfulSends, summary.FailedSends); err != nil {
			return nil, fmt.Errorf("mark campaign sent: %w", err)
		}
	}

	summary.FinishedAt = time.Now().UTC()
	r.log.Info("campaign finished",
		"campaign", campaignID,
		"successful", summary.SuccessfulSends,
		"failed", summary.FailedSends)
	return summary, nil
}

func (r *Runner) sendOne(ctx context.Context, sub *store.Subscriber, campaignID int64) error {
	sel, err := r.selector.Select(ctx, sub, r.perTopic)
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}

	if sel.Total() == 0 {
		return fmt.Errorf("no fresh articles for any topic")
	}
	for t, empty := range sel.Exhausted {
		if empty {
			r.log.Info("topic exhausted", "subscriber", sub.Email, "topic", t)
		}
	}

	// Ledger first: once these commit, the articles are burned for this
	// subscriber even if rendering or delivery fails afterwards.
	if err := r.store.RecordSends(ctx, sub.ID, campaignID, sel.ArticleIDs()); err != nil {
		return fmt.Errorf("record sends: %w", err)
	}

	html, err := r.renderer.Render(sub, sel)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	msg := &email.Message{
		CampaignID: campaignID,
		To:         sub.Email,
		Subject:    "Your Weekly Solutions Stories",
		HTML:       html,
	}
	if err := r.deliverer.Deliver(ctx, msg); err != nil {
		return fmt.Errorf("deliver via %s: %w", r.deliverer.Name(), err)
	}
	return nil
}

// Preview renders the newsletter a subscriber would receive right now,
// without recording anything: the selection is identical to what the next
// real send would pick.
func (r *Runner) Preview(ctx context.Context, subscriberEmail string) (string, error) {
	sub, err := r.store.SubscriberByEmail(ctx, subscriberEmail)
	if err != nil {
		return "", err
	}

	sel, err := r.selector.Select(ctx, sub, r.perTopic)
	if err != nil {
		return "", fmt.Errorf("select: %w", err)
	}

	html, err := r.renderer.Render(sub, sel)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return html, nil
}
