package antiban

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/prospect-cadence/internal/alert"
	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/pkg/logger"
)

// Repository is the data access the monitor needs.
type Repository interface {
	// CountOutcomes counts outbound messages of the account created at or
	// after since, and how many of them failed.
	CountOutcomes(ctx context.Context, accountID string, since time.Time) (total, failed int, err error)

	// PauseActiveCampaigns moves every active campaign bound to the account
	// to paused and returns the IDs that actually changed.
	PauseActiveCampaigns(ctx context.Context, accountID string) ([]string, error)

	// ListConnectedAccounts returns every account currently able to send.
	ListConnectedAccounts(ctx context.Context) ([]domain.ChannelAccount, error)

	RecordAudit(ctx context.Context, e domain.AuditEntry) error
}

// Result describes one account check.
type Result struct {
	AccountID string
	Total     int
	Failed    int
	Rate      float64
	Verdict   Verdict
	Paused    []string
}

// Monitor evaluates failure rates and pauses campaigns when the policy trips.
// It never resumes a campaign; that is an operator decision.
type Monitor struct {
	repo    Repository
	alerter alert.Alerter
	policy  Policy
	now     func() time.Time
}

// NewMonitor creates a monitor. A nil alerter logs alerts only.
func NewMonitor(repo Repository, alerter alert.Alerter, policy Policy) *Monitor {
	if alerter == nil {
		alerter = alert.LogAlerter{}
	}
	return &Monitor{repo: repo, alerter: alerter, policy: policy, now: time.Now}
}

// Check evaluates one account and pauses its active campaigns on Trip.
func (m *Monitor) Check(ctx context.Context, accountID string) (*Result, error) {
	now := m.now()
	total, failed, err := m.repo.CountOutcomes(ctx, accountID, now.Add(-m.policy.Window))
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}

	res := &Result{
		AccountID: accountID,
		Total:     total,
		Failed:    failed,
		Rate:      FailureRate(total, failed),
		Verdict:   m.policy.Evaluate(total, failed),
	}
	if res.Verdict != Trip {
		return res, nil
	}

	paused, err := m.repo.PauseActiveCampaigns(ctx, accountID)
	if err != nil {
		return res, fmt.Errorf("pause campaigns: %w", err)
	}
	res.Paused = paused
	if len(paused) == 0 {
		return res, nil
	}

	details := map[string]any{
		"channel_account_id": accountID,
		"total":              total,
		"failed":             failed,
		"failure_rate":       res.Rate,
		"paused_campaigns":   paused,
	}
	for _, id := range paused {
		err := m.repo.RecordAudit(ctx, domain.AuditEntry{
			ID:         uuid.New().String(),
			EntityType: "campaign",
			EntityID:   id,
			Action:     domain.AuditCampaignPaused,
			Details:    details,
			CreatedAt:  now,
		})
		if err != nil {
			logger.Warn("anti-ban audit write failed", "campaign", id, "error", err)
		}
	}

	logger.Error("anti-ban tripped, campaigns paused",
		"channel_account", accountID, "total", total, "failed", failed,
		"failure_rate", res.Rate, "paused", len(paused))

	err = m.alerter.Raise(ctx, domain.Alert{
		Severity: domain.SeverityCritical,
		Kind:     "antiban_pause",
		Title:    fmt.Sprintf("Channel account %s paused after %.0f%% failures", accountID, res.Rate*100),
		Body: fmt.Sprintf("%d of %d sends failed in the last %s. Paused campaigns: %v. Resume manually once the account is healthy.",
			failed, total, m.policy.Window, paused),
		EntityID: accountID,
		RaisedAt: now,
	})
	if err != nil {
		logger.Warn("anti-ban alert failed", "channel_account", accountID, "error", err)
	}
	return res, nil
}

// CheckAll evaluates every connected account. One failing account does not
// stop the rest.
func (m *Monitor) CheckAll(ctx context.Context) ([]Result, error) {
	accounts, err := m.repo.ListConnectedAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	var results []Result
	for _, a := range accounts {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := m.Check(ctx, a.ID)
		if err != nil {
			logger.Error("anti-ban check failed", "channel_account", a.ID, "error", err)
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}
