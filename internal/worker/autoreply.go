package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/prospect-cadence/internal/alert"
	"github.com/ignite/prospect-cadence/internal/cadence"
	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/pkg/logger"
	"github.com/ignite/prospect-cadence/internal/queue"
	"github.com/ignite/prospect-cadence/internal/replygen"
)

// DefaultHistoryTurns bounds the conversation passed to the generator.
const DefaultHistoryTurns = 20

// ReplyOutcome tells what the gate did with an inbound message.
type ReplyOutcome string

const (
	OutcomeDuplicate   ReplyOutcome = "duplicate"
	OutcomeUnknownLead ReplyOutcome = "unknown_lead"
	OutcomeNoCampaign  ReplyOutcome = "no_campaign"
	OutcomeHuman       ReplyOutcome = "human"
	OutcomeReview      ReplyOutcome = "needs_review"
	OutcomeScheduled   ReplyOutcome = "scheduled"
)

// AutoReplyGate decides whether an inbound message gets an automatic reply
// and schedules it. A nil generator means no AI capability is configured and
// every eligible reply is escalated to a human.
type AutoReplyGate struct {
	store        Store
	queue        queue.Queue
	generator    replygen.Generator
	alerter      alert.Alerter
	historyTurns int

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time
}

// NewAutoReplyGate creates a gate. The generator may be nil.
func NewAutoReplyGate(store Store, q queue.Queue, generator replygen.Generator, alerter alert.Alerter, historyTurns int, rng *rand.Rand) *AutoReplyGate {
	if alerter == nil {
		alerter = alert.LogAlerter{}
	}
	if historyTurns <= 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &AutoReplyGate{
		store:        store,
		queue:        q,
		generator:    generator,
		alerter:      alerter,
		historyTurns: historyTurns,
		rng:          rng,
		now:          time.Now,
	}
}

// Handle is the queue handler for the ai-reply queue.
func (g *AutoReplyGate) Handle(ctx context.Context, job *queue.Job) error {
	var ev InboundEvent
	if err := job.Decode(&ev); err != nil {
		return err
	}
	_, err := g.HandleInbound(ctx, ev)
	return err
}

// HandleInbound records an inbound message and, when the campaign allows it,
// schedules an automatic reply. Redelivery of the same external ID is a no-op.
func (g *AutoReplyGate) HandleInbound(ctx context.Context, ev InboundEvent) (ReplyOutcome, error) {
	now := g.now()
	if ev.ExternalID == "" {
		return "", fmt.Errorf("inbound message without external id")
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = now
	}

	account, err := g.store.GetChannelAccountByInstance(ctx, ev.Instance)
	if err != nil {
		return "", fmt.Errorf("resolve instance %s: %w", ev.Instance, err)
	}

	lead, err := g.store.FindLeadByPhone(ctx, account.OrganizationID, ev.Phone)
	if errors.Is(err, ErrNotFound) {
		logger.Info("inbound message from unknown number ignored", "instance", ev.Instance, "phone", ev.Phone)
		return OutcomeUnknownLead, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve lead: %w", err)
	}

	link, err := g.store.FindReplyLink(ctx, lead.ID)
	var campaignID *string
	if err == nil {
		campaignID = &link.CampaignID
	} else if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("resolve campaign link: %w", err)
	}

	inbound := &domain.OutboundMessage{
		ID:               uuid.New().String(),
		OrganizationID:   lead.OrganizationID,
		LeadID:           lead.ID,
		CampaignID:       campaignID,
		ChannelAccountID: account.ID,
		Direction:        domain.DirectionInbound,
		Content:          ev.Text,
		Status:           domain.MessageDelivered,
		Source:           domain.SourceWebhook,
		ExternalID:       ev.ExternalID,
		CreatedAt:        ev.ReceivedAt,
		DeliveredAt:      &ev.ReceivedAt,
	}
	inserted, err := g.store.RecordInbound(ctx, inbound)
	if err != nil {
		return "", fmt.Errorf("record inbound: %w", err)
	}
	if !inserted {
		return OutcomeDuplicate, nil
	}
	if link == nil {
		return OutcomeNoCampaign, nil
	}

	if link.Status == domain.LinkSent {
		ok, err := g.store.MarkReplied(ctx, link.ID)
		if err != nil {
			return "", fmt.Errorf("mark replied: %w", err)
		}
		if ok {
			link.Status = domain.LinkReplied
			recordAudit(ctx, g.store, lead.OrganizationID, "lead_campaign_link", link.ID, domain.AuditLinkReplied,
				map[string]any{"external_id": ev.ExternalID}, now)
		}
	}

	campaign, err := g.store.GetCampaign(ctx, link.CampaignID)
	if err != nil {
		return "", fmt.Errorf("load campaign: %w", err)
	}
	if !campaign.AI.Enabled {
		g.escalate(ctx, campaign, link, lead, "ai_replies_disabled", now)
		return OutcomeHuman, nil
	}
	if link.AutoRepliesSent >= campaign.AI.MaxAutoReplies {
		g.escalate(ctx, campaign, link, lead, "auto_reply_cap_reached", now)
		return OutcomeReview, nil
	}
	if g.generator == nil {
		g.escalate(ctx, campaign, link, lead, "no_reply_generator", now)
		return OutcomeReview, nil
	}

	text, err := g.generate(ctx, campaign, lead)
	if err != nil {
		return "", err
	}

	ok, err := g.store.IncrementAutoReplies(ctx, link.ID, campaign.AI.MaxAutoReplies)
	if err != nil {
		return "", fmt.Errorf("reserve auto reply: %w", err)
	}
	if !ok {
		// A concurrent reply took the last slot.
		g.escalate(ctx, campaign, link, lead, "auto_reply_cap_reached", now)
		return OutcomeReview, nil
	}

	delay := g.typingDelay()
	job := SendJob{
		Kind:       KindAIReply,
		LinkID:     link.ID,
		CampaignID: campaign.ID,
		LeadID:     lead.ID,
		AccountID:  account.ID,
		Text:       text,
		Source:     domain.SourceAIAuto,
	}
	if _, err := g.queue.Enqueue(ctx, queue.MessageSend, KindAIReply, job, delay); err != nil {
		return "", fmt.Errorf("enqueue reply: %w", err)
	}

	recordAudit(ctx, g.store, lead.OrganizationID, "lead_campaign_link", link.ID, domain.AuditAutoReply,
		map[string]any{"delay_ms": delay.Milliseconds(), "reply_number": link.AutoRepliesSent + 1}, now)
	logger.Info("auto reply scheduled", "campaign", campaign.ID, "link", link.ID, "delay", delay.String())
	return OutcomeScheduled, nil
}

func (g *AutoReplyGate) generate(ctx context.Context, c *domain.Campaign, lead *domain.Lead) (string, error) {
	msgs, err := g.store.RecentConversation(ctx, lead.ID, g.historyTurns)
	if err != nil {
		return "", fmt.Errorf("load conversation: %w", err)
	}
	history := make([]replygen.Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.Direction == domain.DirectionOutbound && m.Status == domain.MessageFailed {
			continue
		}
		role := replygen.RoleLead
		if m.Direction == domain.DirectionOutbound {
			role = replygen.RoleUs
		}
		history = append(history, replygen.Turn{Role: role, Text: m.Content})
	}

	text, err := g.generator.Generate(ctx,
		replygen.LeadContext{Name: lead.Name, Company: lead.Company, City: lead.City, Category: lead.Category, Website: lead.Website},
		history,
		replygen.PromptConfig{Objective: c.Objective, SystemPrompt: c.AI.SystemPrompt, Temperature: c.AI.Temperature},
	)
	if err != nil || strings.TrimSpace(text) == "" {
		logger.Warn("reply generation failed, using fallback", "lead", lead.ID, "error", err)
		return replygen.FallbackReply, nil
	}
	return strings.TrimSpace(text), nil
}

func (g *AutoReplyGate) escalate(ctx context.Context, c *domain.Campaign, link *domain.LeadCampaignLink, lead *domain.Lead, reason string, now time.Time) {
	if err := g.store.SetNeedsHumanReview(ctx, link.ID); err != nil {
		logger.Error("failed to flag link for review", "link", link.ID, "error", err)
		return
	}
	recordAudit(ctx, g.store, c.OrganizationID, "lead_campaign_link", link.ID, domain.AuditHumanReview,
		map[string]any{"reason": reason, "auto_replies_sent": link.AutoRepliesSent}, now)

	err := g.alerter.Raise(ctx, domain.Alert{
		Severity:       domain.SeverityWarning,
		Kind:           "human_review",
		Title:          fmt.Sprintf("Lead %s needs a human reply", displayName(lead)),
		Body:           fmt.Sprintf("Campaign %q: %s.", c.Name, strings.ReplaceAll(reason, "_", " ")),
		OrganizationID: c.OrganizationID,
		EntityID:       link.ID,
		RaisedAt:       now,
	})
	if err != nil {
		logger.Warn("review alert failed", "link", link.ID, "error", err)
	}
}

func (g *AutoReplyGate) typingDelay() time.Duration {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return cadence.TypingDelay(g.rng)
}

func displayName(l *domain.Lead) string {
	if l.Company != "" {
		return l.Company
	}
	if l.Name != "" {
		return l.Name
	}
	return l.ID
}
