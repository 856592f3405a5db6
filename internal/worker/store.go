package worker

import (
	"context"
	"time"

	"github.com/ignite/prospect-cadence/internal/domain"
)

// Store is the data access contract of the cadence workers. Every method that
// changes a status is a conditional update guarded by the expected current
// status and reports whether a row changed, so concurrent workers never need
// a global lock. Implementations must be safe for concurrent use.
type Store interface {
	ListActiveCampaigns(ctx context.Context) ([]domain.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)

	GetChannelAccount(ctx context.Context, id string) (*domain.ChannelAccount, error)
	GetChannelAccountByInstance(ctx context.Context, instance string) (*domain.ChannelAccount, error)
	ListChannelAccounts(ctx context.Context) ([]domain.ChannelAccount, error)
	UpdateChannelStatus(ctx context.Context, id string, status domain.ChannelStatus) error

	// GetWarmup returns warmup.ErrNotFound when the account has no ramp.
	GetWarmup(ctx context.Context, accountID string) (*domain.WarmupProgression, error)

	GetLead(ctx context.Context, id string) (*domain.Lead, error)
	FindLeadByPhone(ctx context.Context, organizationID, phone string) (*domain.Lead, error)
	// MarkLeadContacted sets the lead contacted and bumps its attempt count.
	MarkLeadContacted(ctx context.Context, leadID string, at time.Time) error
	// BlockLead marks the lead blocked and do-not-contact and skips every
	// pending or queued link it has. It returns the skipped link IDs.
	BlockLead(ctx context.Context, leadID string) ([]string, error)

	// SelectPendingLinks returns up to limit pending links of the campaign,
	// highest priority first then oldest first, excluding leads that are
	// do-not-contact, blocked or have no phone.
	SelectPendingLinks(ctx context.Context, campaignID string, limit int) ([]domain.LeadCampaignLink, error)
	GetLink(ctx context.Context, id string) (*domain.LeadCampaignLink, error)
	// MarkQueued moves a pending link to queued.
	MarkQueued(ctx context.Context, linkID string, scheduledAt time.Time) (bool, error)
	// TransitionLink moves a link from one status to another.
	TransitionLink(ctx context.Context, linkID string, from, to domain.LinkStatus) (bool, error)
	// MarkLinkSent moves a queued link to sent and stores the variant used.
	MarkLinkSent(ctx context.Context, linkID string, contactedAt time.Time, variantIndex int) (bool, error)
	// FindReplyLink returns the most recent sent or replied link of the lead
	// whose campaign is active.
	FindReplyLink(ctx context.Context, leadID string) (*domain.LeadCampaignLink, error)
	// MarkReplied moves a sent link to replied and the lead to replied.
	MarkReplied(ctx context.Context, linkID string) (bool, error)
	SetNeedsHumanReview(ctx context.Context, linkID string) error
	// IncrementAutoReplies bumps the counter only while it is below max.
	IncrementAutoReplies(ctx context.Context, linkID string, max int) (bool, error)

	// CountQueuedLinks returns how many links are queued for the campaign
	// and for every campaign bound to the account.
	CountQueuedLinks(ctx context.Context, campaignID, accountID string) (campaign, account int, err error)

	// IncrementCampaignSent and IncrementAccountSent reserve one send from
	// today's counter only while it is below the daily limit. The Release
	// pair gives a reservation back when the send did not go out.
	IncrementCampaignSent(ctx context.Context, campaignID string) (bool, error)
	IncrementAccountSent(ctx context.Context, accountID string) (bool, error)
	ReleaseCampaignSent(ctx context.Context, campaignID string) error
	ReleaseAccountSent(ctx context.Context, accountID string) error
	ResetDailyCounters(ctx context.Context) error

	RecordMessage(ctx context.Context, m *domain.OutboundMessage) error
	// RecordInbound inserts an inbound message keyed by its external ID and
	// reports false when that ID was already recorded.
	RecordInbound(ctx context.Context, m *domain.OutboundMessage) (bool, error)
	// RecentConversation returns up to limit messages with the lead, oldest first.
	RecentConversation(ctx context.Context, leadID string, limit int) ([]domain.OutboundMessage, error)

	RecordAudit(ctx context.Context, e domain.AuditEntry) error
}
