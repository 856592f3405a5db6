package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ignite/prospect-cadence/internal/cadence"
	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/pkg/distlock"
	"github.com/ignite/prospect-cadence/internal/pkg/logger"
	"github.com/ignite/prospect-cadence/internal/queue"
	"github.com/ignite/prospect-cadence/internal/warmup"
)

// Locker hands out per-entity distributed locks.
type Locker interface {
	For(key string) distlock.DistLock
}

// Skip reasons reported by a dispatch pass.
const (
	SkipOutsideWindow   = "outside_window"
	SkipNoAccount       = "no_account"
	SkipDisconnected    = "account_disconnected"
	SkipNoBudget        = "no_budget"
	SkipLocked          = "locked"
	SkipNoPendingLeads  = "no_pending_leads"
	SkipInvalidCampaign = "invalid_campaign"
)

// DispatchReport describes what one pass did for one campaign.
type DispatchReport struct {
	CampaignID string `json:"campaign_id"`
	Budget     int    `json:"budget"`
	Scheduled  int    `json:"scheduled"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// DispatchWorker turns pending links into delayed send jobs. It is the only
// component that moves a link from pending to queued.
type DispatchWorker struct {
	store Store
	queue queue.Queue
	locks Locker

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewDispatchWorker creates a dispatch worker.
func NewDispatchWorker(store Store, q queue.Queue, locks Locker, rng *rand.Rand) *DispatchWorker {
	return &DispatchWorker{store: store, queue: q, locks: locks, rng: rng}
}

// RunPass dispatches every active campaign once. A failure on one campaign is
// logged and does not stop the others.
func (w *DispatchWorker) RunPass(ctx context.Context, now time.Time) ([]DispatchReport, error) {
	campaigns, err := w.store.ListActiveCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}

	reports := make([]DispatchReport, 0, len(campaigns))
	for i := range campaigns {
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
		c := &campaigns[i]
		report := DispatchReport{CampaignID: c.ID}

		ran, err := distlock.WithLock(ctx, w.locks.For("campaign:"+c.ID), func(ctx context.Context) error {
			return w.dispatchCampaign(ctx, c, now, &report)
		})
		if err != nil {
			logger.Error("dispatch failed", "campaign", c.ID, "error", err)
		}
		if !ran && err == nil {
			report.SkipReason = SkipLocked
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (w *DispatchWorker) dispatchCampaign(ctx context.Context, c *domain.Campaign, now time.Time, report *DispatchReport) error {
	if err := cadence.ValidateWindow(c.Window); err != nil {
		report.SkipReason = SkipInvalidCampaign
		logger.Warn("campaign window invalid", "campaign", c.ID, "error", err)
		return nil
	}
	if !cadence.InWindow(c.Window, now.In(c.Location())) {
		report.SkipReason = SkipOutsideWindow
		return nil
	}
	if c.ChannelAccountID == nil || *c.ChannelAccountID == "" {
		report.SkipReason = SkipNoAccount
		return nil
	}

	account, err := w.store.GetChannelAccount(ctx, *c.ChannelAccountID)
	if errors.Is(err, ErrNotFound) {
		report.SkipReason = SkipNoAccount
		return nil
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if !account.Connected() {
		report.SkipReason = SkipDisconnected
		return nil
	}

	budget, err := w.budget(ctx, c, account)
	if err != nil {
		return err
	}
	report.Budget = budget
	if budget <= 0 {
		report.SkipReason = SkipNoBudget
		return nil
	}

	links, err := w.store.SelectPendingLinks(ctx, c.ID, budget)
	if err != nil {
		return fmt.Errorf("select pending links: %w", err)
	}
	if len(links) == 0 {
		report.SkipReason = SkipNoPendingLeads
		return nil
	}

	plan := w.plan(len(links), c.MinIntervalSec, c.MaxIntervalSec)
	for i, link := range links {
		runAt := now.Add(plan[i])
		ok, err := w.store.MarkQueued(ctx, link.ID, runAt)
		if err != nil {
			return fmt.Errorf("mark link %s queued: %w", link.ID, err)
		}
		if !ok {
			// Another writer moved the link since selection.
			continue
		}

		job := SendJob{
			Kind:       KindCadence,
			LinkID:     link.ID,
			CampaignID: c.ID,
			LeadID:     link.LeadID,
			AccountID:  account.ID,
			Source:     domain.SourceCadence,
		}
		if _, err := w.queue.Enqueue(ctx, queue.MessageSend, KindCadence, job, plan[i]); err != nil {
			// Undo so the link is picked up again next pass.
			if _, rerr := w.store.TransitionLink(ctx, link.ID, domain.LinkQueued, domain.LinkPending); rerr != nil {
				logger.Error("failed to revert unqueued link", "link", link.ID, "error", rerr)
			}
			return fmt.Errorf("enqueue send for link %s: %w", link.ID, err)
		}

		report.Scheduled++
		recordAudit(ctx, w.store, c.OrganizationID, "lead_campaign_link", link.ID, domain.AuditLinkQueued,
			map[string]any{"campaign_id": c.ID, "scheduled_at": runAt, "position": i}, now)
	}

	logger.Info("campaign dispatched",
		"campaign", c.ID, "account", account.ID, "budget", budget, "scheduled", report.Scheduled)
	return nil
}

// budget is the smallest of the campaign, account and warm-up allowances,
// less the links already queued by earlier passes and not yet sent.
func (w *DispatchWorker) budget(ctx context.Context, c *domain.Campaign, a *domain.ChannelAccount) (int, error) {
	queuedCampaign, queuedAccount, err := w.store.CountQueuedLinks(ctx, c.ID, a.ID)
	if err != nil {
		return 0, fmt.Errorf("count queued links: %w", err)
	}
	budget := min(c.Remaining()-queuedCampaign, a.Remaining()-queuedAccount)

	ramp, err := w.store.GetWarmup(ctx, a.ID)
	switch {
	case errors.Is(err, warmup.ErrNotFound):
		return budget, nil
	case err != nil:
		return 0, fmt.Errorf("load warm-up: %w", err)
	}
	if r := warmup.Remaining(ramp, a.DailySent); r >= 0 {
		budget = min(budget, r-queuedAccount)
	}
	return max(budget, 0), nil
}

func (w *DispatchWorker) plan(n, minSec, maxSec int) []time.Duration {
	w.rngMu.Lock()
	defer w.rngMu.Unlock()
	return cadence.BuildPlan(w.rng, n, minSec, maxSec)
}
