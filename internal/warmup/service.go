package warmup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/pkg/logger"
)

// Repository defines the data access contract for warm-up progressions.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetWarmup returns the progression of one account, or ErrNotFound.
	GetWarmup(ctx context.Context, accountID string) (*domain.WarmupProgression, error)

	// ListIncompleteWarmups returns every progression with completed = false.
	ListIncompleteWarmups(ctx context.Context) ([]domain.WarmupProgression, error)

	// CreateWarmup inserts a progression. Returns ErrAlreadyStarted on conflict.
	CreateWarmup(ctx context.Context, p *domain.WarmupProgression) error

	// SaveWarmup persists day, limit and completed flag.
	SaveWarmup(ctx context.Context, p *domain.WarmupProgression) error

	// RecordAudit appends an audit entry.
	RecordAudit(ctx context.Context, e domain.AuditEntry) error
}

// OverrideInput holds an operator's manual change. Nil fields are not applied.
type OverrideInput struct {
	CurrentDay        *int `json:"current_day"`
	CurrentDailyLimit *int `json:"current_daily_limit"`
}

// Service advances ramps nightly and applies operator overrides.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a warm-up service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns the progression for an account.
func (s *Service) Get(ctx context.Context, accountID string) (*domain.WarmupProgression, error) {
	return s.repo.GetWarmup(ctx, accountID)
}

// Start enrolls a channel account in a ramp beginning at day 1.
func (s *Service) Start(ctx context.Context, accountID string, steps []domain.WarmupStep) (*domain.WarmupProgression, error) {
	p := NewProgression(accountID, steps, s.now())
	if err := s.repo.CreateWarmup(ctx, p); err != nil {
		return nil, err
	}
	s.audit(ctx, p, domain.AuditWarmupStarted, map[string]any{"daily_limit": p.CurrentDailyLimit})
	return p, nil
}

// AdvanceAll runs the nightly step for every incomplete ramp and returns how
// many were advanced. A failure on one account does not stop the others.
func (s *Service) AdvanceAll(ctx context.Context) (int, error) {
	ramps, err := s.repo.ListIncompleteWarmups(ctx)
	if err != nil {
		return 0, fmt.Errorf("list warm-ups: %w", err)
	}

	advanced := 0
	for i := range ramps {
		p := &ramps[i]
		prevDay, prevLimit := p.CurrentDay, p.CurrentDailyLimit
		if !Advance(p, s.now()) {
			continue
		}
		if err := s.repo.SaveWarmup(ctx, p); err != nil {
			logger.Error("warm-up advance failed", "channel_account", p.ChannelAccountID, "error", err)
			continue
		}
		advanced++
		s.audit(ctx, p, domain.AuditWarmupAdvanced, map[string]any{
			"from_day": prevDay, "to_day": p.CurrentDay,
			"from_limit": prevLimit, "to_limit": p.CurrentDailyLimit,
			"completed": p.Completed,
		})
		logger.Info("warm-up advanced",
			"channel_account", p.ChannelAccountID, "day", p.CurrentDay,
			"daily_limit", p.CurrentDailyLimit, "completed", p.Completed)
	}
	return advanced, nil
}

// Override applies an operator change to a ramp.
func (s *Service) Override(ctx context.Context, accountID string, in OverrideInput) (*domain.WarmupProgression, error) {
	if in.CurrentDay == nil && in.CurrentDailyLimit == nil {
		return nil, fmt.Errorf("%w: nothing to change", ErrInvalidInput)
	}
	if in.CurrentDay != nil && *in.CurrentDay < 1 {
		return nil, fmt.Errorf("%w: day must be at least 1", ErrInvalidInput)
	}
	if in.CurrentDailyLimit != nil && *in.CurrentDailyLimit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidInput)
	}

	p, err := s.repo.GetWarmup(ctx, accountID)
	if err != nil {
		return nil, err
	}
	prevDay, prevLimit := p.CurrentDay, p.CurrentDailyLimit
	Override(p, in.CurrentDay, in.CurrentDailyLimit, s.now())
	if err := s.repo.SaveWarmup(ctx, p); err != nil {
		return nil, fmt.Errorf("save warm-up: %w", err)
	}
	s.audit(ctx, p, domain.AuditWarmupOverridden, map[string]any{
		"from_day": prevDay, "to_day": p.CurrentDay,
		"from_limit": prevLimit, "to_limit": p.CurrentDailyLimit,
	})
	return p, nil
}

func (s *Service) audit(ctx context.Context, p *domain.WarmupProgression, action domain.AuditAction, details map[string]any) {
	err := s.repo.RecordAudit(ctx, domain.AuditEntry{
		ID:         uuid.New().String(),
		EntityType: "channel_account",
		EntityID:   p.ChannelAccountID,
		Action:     action,
		Details:    details,
		CreatedAt:  s.now(),
	})
	if err != nil {
		logger.Warn("warm-up audit write failed", "channel_account", p.ChannelAccountID, "error", err)
	}
}
