package warmup

import (
	"time"

	"github.com/ignite/prospect-cadence/internal/domain"
)

// CompletionDay is the first day on which a ramp counts as completed.
const CompletionDay = 15

// DefaultSteps is the ramp applied to newly connected channel accounts.
var DefaultSteps = []domain.WarmupStep{
	{FromDay: 1, ToDay: 3, Limit: 10},
	{FromDay: 4, ToDay: 7, Limit: 25},
	{FromDay: 8, ToDay: 14, Limit: 50},
	{FromDay: 15, ToDay: 0, Limit: 80},
}

// NewProgression starts a ramp at day 1 for the given account.
func NewProgression(accountID string, steps []domain.WarmupStep, now time.Time) *domain.WarmupProgression {
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	p := &domain.WarmupProgression{
		ChannelAccountID: accountID,
		CurrentDay:       1,
		Steps:            append([]domain.WarmupStep(nil), steps...),
		StartedAt:        now,
		UpdatedAt:        now,
	}
	if limit, ok := LimitForDay(steps, 1); ok {
		p.CurrentDailyLimit = limit
	}
	return p
}

// LimitForDay looks up the step containing day.
func LimitForDay(steps []domain.WarmupStep, day int) (int, bool) {
	for _, s := range steps {
		if s.Contains(day) {
			return s.Limit, true
		}
	}
	return 0, false
}

// Advance moves a non-completed ramp to the next day. The limit follows the
// step table and is kept when no step matches. Completed ramps are left
// untouched; the return value reports whether p changed.
func Advance(p *domain.WarmupProgression, now time.Time) bool {
	if p.Completed {
		return false
	}
	next := p.CurrentDay + 1
	p.CurrentDay = next
	if limit, ok := LimitForDay(p.Steps, next); ok {
		p.CurrentDailyLimit = limit
	}
	p.Completed = next >= CompletionDay
	p.UpdatedAt = now
	return true
}

// Override applies an operator change to the current day or limit. It skips
// the step table and may move the day backwards, which reopens a completed
// ramp.
func Override(p *domain.WarmupProgression, day, limit *int, now time.Time) {
	if day != nil {
		p.CurrentDay = *day
		p.Completed = *day >= CompletionDay
	}
	if limit != nil {
		p.CurrentDailyLimit = *limit
	}
	p.UpdatedAt = now
}

// Remaining returns how many more sends the ramp allows after sentToday.
// A nil ramp imposes no cap and returns -1. Completed ramps keep capping at
// their final limit.
func Remaining(p *domain.WarmupProgression, sentToday int) int {
	if p == nil {
		return -1
	}
	if r := p.CurrentDailyLimit - sentToday; r > 0 {
		return r
	}
	return 0
}
