package worker

import (
	"context"
	"log"
	"time"

	"github.com/ignite/prospect-cadence/internal/domain"
)

// =============================================================================
// LINK RECOVERY WORKER
// =============================================================================
// A link moves to 'queued' when the dispatch worker schedules its send job.
// If that job is lost (Redis flushed, worker killed between dequeue and
// handling) the link stays queued forever and the lead is never contacted.
// This worker reverts links whose scheduled send time is long past back to
// 'pending' so the next dispatch pass picks them up again. A late job for a
// reverted link finds it no longer queued and does nothing.

const (
	// DefaultRecoveryInterval is how often we scan for stuck links.
	DefaultRecoveryInterval = 5 * time.Minute

	// DefaultStaleAge is how far past its scheduled time a queued link may be
	// before it is considered orphaned. The send queue is paced at one send
	// per interval, so this leaves room for a backlog.
	DefaultStaleAge = 30 * time.Minute
)

// RevertedLink identifies a link moved back to pending by recovery.
type RevertedLink struct {
	ID             string
	OrganizationID string
}

// StaleLinkStore is the data access the recovery worker needs.
type StaleLinkStore interface {
	// RevertStaleQueuedLinks moves every queued link scheduled before
	// cutoff back to pending and returns the links that changed.
	RevertStaleQueuedLinks(ctx context.Context, cutoff time.Time) ([]RevertedLink, error)

	RecordAudit(ctx context.Context, e domain.AuditEntry) error
}

// LinkRecoveryWorker periodically reclaims queued links whose send job never ran.
type LinkRecoveryWorker struct {
	store    StaleLinkStore
	interval time.Duration
	staleAge time.Duration
	now      func() time.Time
}

// NewLinkRecoveryWorker creates a recovery worker. Non-positive durations
// fall back to the defaults.
func NewLinkRecoveryWorker(store StaleLinkStore, interval, staleAge time.Duration) *LinkRecoveryWorker {
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	return &LinkRecoveryWorker{store: store, interval: interval, staleAge: staleAge, now: time.Now}
}

// Start begins the recovery loop. It blocks until ctx is cancelled.
func (r *LinkRecoveryWorker) Start(ctx context.Context) {
	log.Printf("[LinkRecovery] Starting (interval=%s, stale_age=%s)", r.interval, r.staleAge)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[LinkRecovery] Stopping")
			return
		case <-ticker.C:
			if _, err := r.RecoverOnce(ctx); err != nil {
				log.Printf("[LinkRecovery] recovery error: %v", err)
			}
		}
	}
}

// RecoverOnce runs a single scan and returns how many links were reverted.
func (r *LinkRecoveryWorker) RecoverOnce(ctx context.Context) (int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := r.now()
	reverted, err := r.store.RevertStaleQueuedLinks(queryCtx, now.Add(-r.staleAge))
	if err != nil {
		return 0, err
	}
	for _, l := range reverted {
		recordAudit(ctx, r.store, l.OrganizationID, "lead_campaign_link", l.ID, domain.AuditLinkReverted,
			map[string]any{"reason": "send job lost"}, now)
	}
	if len(reverted) > 0 {
		log.Printf("[LinkRecovery] reverted %d orphaned queued links", len(reverted))
	}
	return len(reverted), nil
}
