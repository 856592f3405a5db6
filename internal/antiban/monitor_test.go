package antiban_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/prospect-cadence/internal/antiban"
	"github.com/ignite/prospect-cadence/internal/domain"
)

type outcome struct {
	at     time.Time
	failed bool
}

// memRepo is an in-memory anti-ban repository for unit testing.
type memRepo struct {
	mu        sync.Mutex
	outcomes  map[string][]outcome
	campaigns map[string]*domain.Campaign
	accounts  []domain.ChannelAccount
	audits    []domain.AuditEntry
}

func newMemRepo() *memRepo {
	return &memRepo{
		outcomes:  make(map[string][]outcome),
		campaigns: make(map[string]*domain.Campaign),
	}
}

func (m *memRepo) CountOutcomes(_ context.Context, accountID string, since time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, failed int
	for _, o := range m.outcomes[accountID] {
		if o.at.Before(since) {
			continue
		}
		total++
		if o.failed {
			failed++
		}
	}
	return total, failed, nil
}

func (m *memRepo) PauseActiveCampaigns(_ context.Context, accountID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, c := range m.campaigns {
		if c.ChannelAccountID != nil && *c.ChannelAccountID == accountID && c.Status == domain.CampaignActive {
			c.Status = domain.CampaignPaused
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

func (m *memRepo) ListConnectedAccounts(context.Context) ([]domain.ChannelAccount, error) {
	return m.accounts, nil
}

func (m *memRepo) RecordAudit(_ context.Context, e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, e)
	return nil
}

type captureAlerter struct {
	alerts []domain.Alert
}

func (c *captureAlerter) Raise(_ context.Context, a domain.Alert) error {
	c.alerts = append(c.alerts, a)
	return nil
}

func (m *memRepo) seed(accountID string, total, failed int, at time.Time) {
	for i := 0; i < total; i++ {
		m.outcomes[accountID] = append(m.outcomes[accountID], outcome{at: at, failed: i < failed})
	}
}

func strPtr(s string) *string { return &s }

func TestCheckTripsAndPauses(t *testing.T) {
	repo := newMemRepo()
	repo.campaigns["c1"] = &domain.Campaign{ID: "c1", Status: domain.CampaignActive, ChannelAccountID: strPtr("acc")}
	repo.campaigns["c2"] = &domain.Campaign{ID: "c2", Status: domain.CampaignDraft, ChannelAccountID: strPtr("acc")}
	repo.campaigns["c3"] = &domain.Campaign{ID: "c3", Status: domain.CampaignActive, ChannelAccountID: strPtr("other")}
	repo.seed("acc", 20, 5, time.Now().Add(-10*time.Minute))

	alerts := &captureAlerter{}
	mon := antiban.NewMonitor(repo, alerts, antiban.DefaultPolicy)

	res, err := mon.Check(context.Background(), "acc")
	require.NoError(t, err)
	assert.Equal(t, antiban.Trip, res.Verdict)
	assert.InDelta(t, 0.25, res.Rate, 1e-9)
	assert.Equal(t, []string{"c1"}, res.Paused)

	assert.Equal(t, domain.CampaignPaused, repo.campaigns["c1"].Status)
	assert.Equal(t, domain.CampaignDraft, repo.campaigns["c2"].Status)
	assert.Equal(t, domain.CampaignActive, repo.campaigns["c3"].Status)

	require.Len(t, repo.audits, 1)
	assert.Equal(t, domain.AuditCampaignPaused, repo.audits[0].Action)
	assert.Equal(t, 5, repo.audits[0].Details["failed"])

	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, domain.SeverityCritical, alerts.alerts[0].Severity)
}

func TestCheckSkipsSmallSamples(t *testing.T) {
	repo := newMemRepo()
	repo.campaigns["c1"] = &domain.Campaign{ID: "c1", Status: domain.CampaignActive, ChannelAccountID: strPtr("acc")}
	repo.seed("acc", 5, 5, time.Now().Add(-time.Minute))

	alerts := &captureAlerter{}
	res, err := antiban.NewMonitor(repo, alerts, antiban.DefaultPolicy).Check(context.Background(), "acc")
	require.NoError(t, err)

	assert.Equal(t, antiban.Insufficient, res.Verdict)
	assert.Equal(t, domain.CampaignActive, repo.campaigns["c1"].Status)
	assert.Empty(t, alerts.alerts)
}

func TestCheckIgnoresOldFailures(t *testing.T) {
	repo := newMemRepo()
	repo.campaigns["c1"] = &domain.Campaign{ID: "c1", Status: domain.CampaignActive, ChannelAccountID: strPtr("acc")}
	repo.seed("acc", 20, 20, time.Now().Add(-2*time.Hour))
	repo.seed("acc", 12, 1, time.Now().Add(-5*time.Minute))

	res, err := antiban.NewMonitor(repo, nil, antiban.DefaultPolicy).Check(context.Background(), "acc")
	require.NoError(t, err)
	assert.Equal(t, antiban.Healthy, res.Verdict)
	assert.Equal(t, 12, res.Total)
}

func TestCheckAllContinuesAcrossAccounts(t *testing.T) {
	repo := newMemRepo()
	repo.accounts = []domain.ChannelAccount{{ID: "a1"}, {ID: "a2"}}
	repo.campaigns["c2"] = &domain.Campaign{ID: "c2", Status: domain.CampaignActive, ChannelAccountID: strPtr("a2")}
	repo.seed("a2", 10, 9, time.Now())

	results, err := antiban.NewMonitor(repo, nil, antiban.DefaultPolicy).CheckAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, antiban.Insufficient, results[0].Verdict)
	assert.Equal(t, antiban.Trip, results[1].Verdict)
	assert.Equal(t, domain.CampaignPaused, repo.campaigns["c2"].Status)
}
