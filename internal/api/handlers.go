// Package api exposes the gateway webhook and the operator controls of the
// cadence engine over HTTP.
package api

import (
	"context"
	"time"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/queue"
	"github.com/ignite/prospect-cadence/internal/scoring"
	"github.com/ignite/prospect-cadence/internal/warmup"
)

// Store is the data access the handlers need.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	CreateCampaign(ctx context.Context, c *domain.Campaign, leadIDs []string, rules []scoring.Rule) (int, error)
	SetCampaignStatus(ctx context.Context, id string, from, to domain.CampaignStatus) (bool, error)
	ListReviewQueue(ctx context.Context, orgID string, limit, offset int) ([]domain.LeadCampaignLink, int, error)

	GetChannelAccount(ctx context.Context, id string) (*domain.ChannelAccount, error)
	GetChannelAccountByInstance(ctx context.Context, instance string) (*domain.ChannelAccount, error)
	UpdateChannelStatus(ctx context.Context, id string, status domain.ChannelStatus) error
	UpdateMessageStatus(ctx context.Context, externalID string, next domain.MessageStatus, at time.Time) (bool, error)

	RecordAudit(ctx context.Context, e domain.AuditEntry) error
}

// WarmupService is the warm-up control surface.
type WarmupService interface {
	Get(ctx context.Context, accountID string) (*domain.WarmupProgression, error)
	Start(ctx context.Context, accountID string, steps []domain.WarmupStep) (*domain.WarmupProgression, error)
	Override(ctx context.Context, accountID string, in warmup.OverrideInput) (*domain.WarmupProgression, error)
}

// Options configures the handlers.
type Options struct {
	// WebhookSecret, when set, must be presented by the gateway.
	WebhookSecret string
	// DefaultRegion is used to normalize sender numbers without a country code.
	DefaultRegion string
	// WarmupSteps is the ramp used when an operator starts a warm-up without
	// custom steps.
	WarmupSteps []domain.WarmupStep
}

// Handlers holds the dependencies of every route.
type Handlers struct {
	store   Store
	queue   queue.Queue
	warmups WarmupService
	health  *HealthChecker
	opts    Options
	now     func() time.Time
}

// NewHandlers creates the handler set. health may be nil.
func NewHandlers(store Store, q queue.Queue, warmups WarmupService, health *HealthChecker, opts Options) *Handlers {
	return &Handlers{
		store:   store,
		queue:   q,
		warmups: warmups,
		health:  health,
		opts:    opts,
		now:     time.Now,
	}
}
