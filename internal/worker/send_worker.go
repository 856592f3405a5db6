package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/prospect-cadence/internal/alert"
	"github.com/ignite/prospect-cadence/internal/antiban"
	"github.com/ignite/prospect-cadence/internal/cadence"
	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/gateway"
	"github.com/ignite/prospect-cadence/internal/pkg/distlock"
	"github.com/ignite/prospect-cadence/internal/pkg/logger"
	"github.com/ignite/prospect-cadence/internal/queue"
	"github.com/ignite/prospect-cadence/internal/warmup"
)

// lockRetryDelay is how long a job waits when its account is locked by
// another process.
const lockRetryDelay = 15 * time.Second

// SafetyChecker re-evaluates an account after every send attempt.
type SafetyChecker interface {
	Check(ctx context.Context, accountID string) (*antiban.Result, error)
}

// SendWorker executes send jobs one at a time. Pacing comes from the pool
// (concurrency 1 plus the Redis rate limiter) and a per-account lock.
// Every precondition is re-read when the job runs, because jobs are never
// cancelled once enqueued.
type SendWorker struct {
	store    Store
	gw       gateway.Client
	queue    queue.Queue
	locks    Locker
	monitor  SafetyChecker
	alerter  alert.Alerter
	renderer *cadence.Renderer

	rngMu     sync.Mutex
	rng       *rand.Rand
	humanizer *cadence.Humanizer

	now func() time.Time
}

// NewSendWorker creates a send worker.
func NewSendWorker(store Store, gw gateway.Client, q queue.Queue, locks Locker, monitor SafetyChecker, alerter alert.Alerter, rng *rand.Rand) *SendWorker {
	if alerter == nil {
		alerter = alert.LogAlerter{}
	}
	return &SendWorker{
		store:     store,
		gw:        gw,
		queue:     q,
		locks:     locks,
		monitor:   monitor,
		alerter:   alerter,
		renderer:  cadence.NewRenderer(),
		rng:       rng,
		humanizer: cadence.NewHumanizer(rng),
		now:       time.Now,
	}
}

// Handle is the queue handler for the message-send queue.
func (w *SendWorker) Handle(ctx context.Context, job *queue.Job) error {
	var sj SendJob
	if err := job.Decode(&sj); err != nil {
		return err
	}
	if sj.AccountID == "" {
		return fmt.Errorf("send job %s has no account", job.ID)
	}

	ran, err := distlock.WithLock(ctx, w.locks.For("account:"+sj.AccountID), func(ctx context.Context) error {
		switch sj.Kind {
		case KindCadence:
			return w.sendCadence(ctx, sj)
		case KindAIReply:
			return w.sendReply(ctx, sj)
		default:
			return fmt.Errorf("unknown send job kind %q", sj.Kind)
		}
	})
	if err != nil {
		return err
	}
	if !ran {
		if _, err := w.queue.Enqueue(ctx, job.Queue, job.Kind, sj, lockRetryDelay); err != nil {
			return fmt.Errorf("%w: requeue failed: %v", ErrLockBusy, err)
		}
	}
	return nil
}

func (w *SendWorker) sendCadence(ctx context.Context, sj SendJob) error {
	now := w.now()

	link, err := w.store.GetLink(ctx, sj.LinkID)
	if errors.Is(err, ErrNotFound) {
		logger.Warn("send job for missing link dropped", "link", sj.LinkID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load link: %w", err)
	}
	if link.Status != domain.LinkQueued {
		logger.Info("link no longer queued, send skipped", "link", link.ID, "status", link.Status)
		return nil
	}

	campaign, err := w.store.GetCampaign(ctx, sj.CampaignID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("load campaign: %w", err)
	}
	if campaign == nil || campaign.Status != domain.CampaignActive {
		return w.revert(ctx, campaign, link, "campaign_inactive", now)
	}

	account, ok, err := w.checkAccount(ctx, campaign.OrganizationID, sj.AccountID, now)
	if err != nil {
		return err
	}
	if !ok {
		return w.revert(ctx, campaign, link, "account_unavailable", now)
	}

	lead, err := w.store.GetLead(ctx, link.LeadID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("load lead: %w", err)
	}
	if lead == nil || !lead.Contactable() {
		return w.skip(ctx, campaign, link, "lead_not_contactable", now)
	}

	text, variantIdx, err := w.compose(campaign, link, lead)
	if err != nil {
		w.raise(ctx, domain.Alert{
			Severity:       domain.SeverityWarning,
			Kind:           "variant_render_failed",
			Title:          fmt.Sprintf("Campaign %s has a broken message variant", campaign.Name),
			Body:           err.Error(),
			OrganizationID: campaign.OrganizationID,
			EntityID:       campaign.ID,
			RaisedAt:       now,
		})
		return w.revert(ctx, campaign, link, "variant_render_failed", now)
	}

	reserved, err := w.reserve(ctx, campaign, account)
	if err != nil {
		return err
	}
	if !reserved {
		return w.revert(ctx, campaign, link, "daily_limit_reached", now)
	}

	res, sendErr := w.deliver(ctx, account, lead.Phone, text)
	msg := w.newMessage(campaign.OrganizationID, lead.ID, &campaign.ID, account.ID, text, domain.SourceCadence, now)
	w.settle(msg, res, sendErr, now)
	if err := w.store.RecordMessage(ctx, msg); err != nil {
		logger.Error("failed to record message", "link", link.ID, "error", err)
	}

	if sendErr != nil {
		w.release(ctx, campaign.ID, account.ID, true)
		w.handleFailure(ctx, campaign.OrganizationID, campaign, link, lead, account, sendErr, now)
	} else {
		w.handleSuccess(ctx, campaign, link, lead, account, variantIdx, now)
	}
	w.checkSafety(ctx, account.ID)
	return nil
}

func (w *SendWorker) sendReply(ctx context.Context, sj SendJob) error {
	now := w.now()

	lead, err := w.store.GetLead(ctx, sj.LeadID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("load lead: %w", err)
	}
	if lead == nil || !lead.Contactable() {
		logger.Info("reply dropped, lead not contactable", "lead", sj.LeadID)
		return nil
	}

	account, ok, err := w.checkAccount(ctx, lead.OrganizationID, sj.AccountID, now)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn("reply dropped, account unavailable", "lead", lead.ID, "account", sj.AccountID)
		return nil
	}

	source := sj.Source
	if source == "" {
		source = domain.SourceAIAuto
	}
	var campaignID *string
	if sj.CampaignID != "" {
		campaignID = &sj.CampaignID
	}

	res, sendErr := w.deliver(ctx, account, lead.Phone, sj.Text)
	msg := w.newMessage(lead.OrganizationID, lead.ID, campaignID, account.ID, sj.Text, source, now)
	w.settle(msg, res, sendErr, now)
	if err := w.store.RecordMessage(ctx, msg); err != nil {
		logger.Error("failed to record reply", "lead", lead.ID, "error", err)
	}
	if sendErr != nil && gateway.IsInvalidNumber(sendErr) {
		w.block(ctx, lead.OrganizationID, lead, sendErr, now)
	}
	if sendErr != nil {
		logger.Warn("auto reply failed", "lead", lead.ID, "error", sendErr)
	}
	w.checkSafety(ctx, account.ID)
	return nil
}

// reserve takes one unit of the campaign and account daily caps before the
// gateway is called. The warm-up ramp caps the account as well. Counters are
// ceiling-checked increments; a partial reservation is released.
func (w *SendWorker) reserve(ctx context.Context, c *domain.Campaign, a *domain.ChannelAccount) (bool, error) {
	ramp, err := w.store.GetWarmup(ctx, a.ID)
	switch {
	case errors.Is(err, warmup.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("load warm-up: %w", err)
	case warmup.Remaining(ramp, a.DailySent) == 0:
		logger.Info("warm-up limit reached, send deferred", "account", a.ID, "limit", ramp.CurrentDailyLimit)
		return false, nil
	}

	ok, err := w.store.IncrementCampaignSent(ctx, c.ID)
	if err != nil {
		return false, fmt.Errorf("reserve campaign send: %w", err)
	}
	if !ok {
		logger.Info("campaign daily limit reached, send deferred", "campaign", c.ID)
		return false, nil
	}
	ok, err = w.store.IncrementAccountSent(ctx, a.ID)
	if err != nil || !ok {
		w.release(ctx, c.ID, a.ID, false)
		if err != nil {
			return false, fmt.Errorf("reserve account send: %w", err)
		}
		logger.Info("account daily limit reached, send deferred", "account", a.ID)
		return false, nil
	}
	return true, nil
}

// release gives back a reservation whose message was not delivered.
func (w *SendWorker) release(ctx context.Context, campaignID, accountID string, account bool) {
	if err := w.store.ReleaseCampaignSent(ctx, campaignID); err != nil {
		logger.Error("failed to release campaign send", "campaign", campaignID, "error", err)
	}
	if !account {
		return
	}
	if err := w.store.ReleaseAccountSent(ctx, accountID); err != nil {
		logger.Error("failed to release account send", "account", accountID, "error", err)
	}
}

// checkAccount verifies the account locally and against the gateway. A
// gateway state other than open is written back to the account.
func (w *SendWorker) checkAccount(ctx context.Context, orgID, accountID string, now time.Time) (*domain.ChannelAccount, bool, error) {
	account, err := w.store.GetChannelAccount(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load account: %w", err)
	}
	if !account.Connected() {
		return account, false, nil
	}

	state, err := w.gw.ConnectionState(ctx, account.Instance)
	if err != nil {
		logger.Warn("connection state check failed", "account", account.ID, "error", err)
		return account, false, nil
	}
	if state != gateway.StateOpen {
		w.setAccountStatus(ctx, orgID, account, statusFromState(state), now)
		return account, false, nil
	}
	return account, true, nil
}

func (w *SendWorker) compose(c *domain.Campaign, link *domain.LeadCampaignLink, lead *domain.Lead) (string, int, error) {
	w.rngMu.Lock()
	defer w.rngMu.Unlock()

	variant, idx := cadence.SelectVariant(w.rng, c.Variants, link.LastVariantIndex)
	if idx == domain.NoVariant {
		return "", idx, fmt.Errorf("campaign %s has no variants", c.ID)
	}
	text, err := w.renderer.Render(variant, lead.TemplateVars())
	if err != nil {
		return "", idx, err
	}
	return w.humanizer.Humanize(text), idx, nil
}

func (w *SendWorker) deliver(ctx context.Context, account *domain.ChannelAccount, phone, text string) (gateway.SendResult, error) {
	if err := w.gw.SetPresence(ctx, account.Instance, phone, gateway.PresenceComposing); err != nil {
		logger.Debug("presence update failed", "account", account.ID, "error", err)
	}
	return w.gw.SendText(ctx, account.Instance, phone, text)
}

func (w *SendWorker) newMessage(orgID, leadID string, campaignID *string, accountID, text string, source domain.MessageSource, now time.Time) *domain.OutboundMessage {
	return &domain.OutboundMessage{
		ID:               uuid.New().String(),
		OrganizationID:   orgID,
		LeadID:           leadID,
		CampaignID:       campaignID,
		ChannelAccountID: accountID,
		Direction:        domain.DirectionOutbound,
		Content:          text,
		Status:           domain.MessagePending,
		Source:           source,
		CreatedAt:        now,
	}
}

// settle moves a pending message to its send outcome.
func (w *SendWorker) settle(msg *domain.OutboundMessage, res gateway.SendResult, sendErr error, now time.Time) {
	if sendErr != nil {
		msg.Error = sendErr.Error()
		_ = msg.Transition(domain.MessageFailed, now)
		return
	}
	msg.ExternalID = res.ExternalID
	_ = msg.Transition(domain.MessageSent, now)
}

func (w *SendWorker) handleSuccess(ctx context.Context, c *domain.Campaign, link *domain.LeadCampaignLink, lead *domain.Lead, account *domain.ChannelAccount, variantIdx int, now time.Time) {
	if ok, err := w.store.MarkLinkSent(ctx, link.ID, now, variantIdx); err != nil || !ok {
		logger.Error("failed to mark link sent", "link", link.ID, "changed", ok, "error", err)
	}
	if err := w.store.MarkLeadContacted(ctx, lead.ID, now); err != nil {
		logger.Error("failed to mark lead contacted", "lead", lead.ID, "error", err)
	}
	recordAudit(ctx, w.store, c.OrganizationID, "lead_campaign_link", link.ID, domain.AuditLinkSent,
		map[string]any{"campaign_id": c.ID, "variant_index": variantIdx}, now)
	logger.Info("cadence message sent", "campaign", c.ID, "link", link.ID, "phone", lead.Phone)
}

func (w *SendWorker) handleFailure(ctx context.Context, orgID string, c *domain.Campaign, link *domain.LeadCampaignLink, lead *domain.Lead, account *domain.ChannelAccount, sendErr error, now time.Time) {
	switch gateway.KindOf(sendErr) {
	case gateway.KindInvalidNumber:
		w.block(ctx, orgID, lead, sendErr, now)
		return
	case gateway.KindUnauthorized:
		w.setAccountStatus(ctx, orgID, account, domain.ChannelDisconnected, now)
	}
	logger.Warn("cadence send failed", "campaign", c.ID, "link", link.ID, "error", sendErr)
	_ = w.revert(ctx, c, link, "send_failed", now)
}

// block permanently excludes a lead whose number is not on the network.
func (w *SendWorker) block(ctx context.Context, orgID string, lead *domain.Lead, cause error, now time.Time) {
	skipped, err := w.store.BlockLead(ctx, lead.ID)
	if err != nil {
		logger.Error("failed to block lead", "lead", lead.ID, "error", err)
		return
	}
	recordAudit(ctx, w.store, orgID, "lead", lead.ID, domain.AuditLeadBlocked,
		map[string]any{"reason": "invalid_number", "error": cause.Error()}, now)
	for _, id := range skipped {
		recordAudit(ctx, w.store, orgID, "lead_campaign_link", id, domain.AuditLinkSkipped,
			map[string]any{"reason": "lead_blocked"}, now)
	}
	logger.Warn("lead blocked after invalid number", "lead", lead.ID, "skipped_links", len(skipped))
}

func (w *SendWorker) revert(ctx context.Context, c *domain.Campaign, link *domain.LeadCampaignLink, reason string, now time.Time) error {
	ok, err := w.store.TransitionLink(ctx, link.ID, domain.LinkQueued, domain.LinkPending)
	if err != nil {
		return fmt.Errorf("revert link %s: %w", link.ID, err)
	}
	if ok {
		recordAudit(ctx, w.store, orgOf(c), "lead_campaign_link", link.ID, domain.AuditLinkReverted,
			map[string]any{"reason": reason}, now)
	}
	return nil
}

func (w *SendWorker) skip(ctx context.Context, c *domain.Campaign, link *domain.LeadCampaignLink, reason string, now time.Time) error {
	ok, err := w.store.TransitionLink(ctx, link.ID, domain.LinkQueued, domain.LinkSkipped)
	if err != nil {
		return fmt.Errorf("skip link %s: %w", link.ID, err)
	}
	if ok {
		recordAudit(ctx, w.store, orgOf(c), "lead_campaign_link", link.ID, domain.AuditLinkSkipped,
			map[string]any{"reason": reason}, now)
	}
	return nil
}

func (w *SendWorker) setAccountStatus(ctx context.Context, orgID string, a *domain.ChannelAccount, status domain.ChannelStatus, now time.Time) {
	if a.Status == status {
		return
	}
	if err := w.store.UpdateChannelStatus(ctx, a.ID, status); err != nil {
		logger.Error("failed to update account status", "account", a.ID, "error", err)
		return
	}
	recordAudit(ctx, w.store, orgID, "channel_account", a.ID, domain.AuditChannelStatus,
		map[string]any{"from": a.Status, "to": status}, now)
	a.Status = status
}

func (w *SendWorker) checkSafety(ctx context.Context, accountID string) {
	if w.monitor == nil {
		return
	}
	if _, err := w.monitor.Check(ctx, accountID); err != nil {
		logger.Error("anti-ban check failed", "account", accountID, "error", err)
	}
}

func (w *SendWorker) raise(ctx context.Context, a domain.Alert) {
	if err := w.alerter.Raise(ctx, a); err != nil {
		logger.Warn("alert delivery failed", "kind", a.Kind, "error", err)
	}
}

func orgOf(c *domain.Campaign) string {
	if c == nil {
		return ""
	}
	return c.OrganizationID
}

func statusFromState(s gateway.State) domain.ChannelStatus {
	switch s {
	case gateway.StateOpen:
		return domain.ChannelConnected
	case gateway.StateConnecting:
		return domain.ChannelConnecting
	default:
		return domain.ChannelDisconnected
	}
}
