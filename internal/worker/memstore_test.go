package worker_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/gateway"
	"github.com/ignite/prospect-cadence/internal/warmup"
	"github.com/ignite/prospect-cadence/internal/worker"
)

// memStore is an in-memory Store for unit testing. It also satisfies the
// anti-ban repository so the monitor sees the same message history.
type memStore struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	accounts  map[string]*domain.ChannelAccount
	leads     map[string]*domain.Lead
	links     map[string]*domain.LeadCampaignLink
	warmups   map[string]*domain.WarmupProgression
	messages  []domain.OutboundMessage
	audits    []domain.AuditEntry
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[string]*domain.Campaign),
		accounts:  make(map[string]*domain.ChannelAccount),
		leads:     make(map[string]*domain.Lead),
		links:     make(map[string]*domain.LeadCampaignLink),
		warmups:   make(map[string]*domain.WarmupProgression),
	}
}

func (m *memStore) ListActiveCampaigns(context.Context) ([]domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.Status == domain.CampaignActive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, worker.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetChannelAccount(_ context.Context, id string) (*domain.ChannelAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, worker.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) GetChannelAccountByInstance(_ context.Context, instance string) (*domain.ChannelAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Instance == instance {
			cp := *a
			return &cp, nil
		}
	}
	return nil, worker.ErrNotFound
}

func (m *memStore) ListChannelAccounts(context.Context) ([]domain.ChannelAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ChannelAccount
	for _, a := range m.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListConnectedAccounts(ctx context.Context) ([]domain.ChannelAccount, error) {
	all, _ := m.ListChannelAccounts(ctx)
	var out []domain.ChannelAccount
	for _, a := range all {
		if a.Connected() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) UpdateChannelStatus(_ context.Context, id string, status domain.ChannelStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.Status = status
	}
	return nil
}

func (m *memStore) GetWarmup(_ context.Context, accountID string) (*domain.WarmupProgression, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.warmups[accountID]
	if !ok {
		return nil, warmup.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetLead(_ context.Context, id string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, worker.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) FindLeadByPhone(_ context.Context, orgID, phone string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leads {
		if l.OrganizationID == orgID && l.Phone == phone {
			cp := *l
			return &cp, nil
		}
	}
	return nil, worker.ErrNotFound
}

func (m *memStore) MarkLeadContacted(_ context.Context, leadID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.leads[leadID]
	if l.Status != domain.LeadReplied && l.Status != domain.LeadBlocked {
		l.Status = domain.LeadContacted
	}
	l.ContactAttempts++
	l.LastContactedAt = &at
	return nil
}

func (m *memStore) BlockLead(_ context.Context, leadID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.leads[leadID]
	l.Status = domain.LeadBlocked
	l.DoNotContact = true
	var skipped []string
	for _, link := range m.links {
		if link.LeadID == leadID && (link.Status == domain.LinkPending || link.Status == domain.LinkQueued) {
			link.Status = domain.LinkSkipped
			skipped = append(skipped, link.ID)
		}
	}
	sort.Strings(skipped)
	return skipped, nil
}

func (m *memStore) SelectPendingLinks(_ context.Context, campaignID string, limit int) ([]domain.LeadCampaignLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LeadCampaignLink
	for _, link := range m.links {
		if link.CampaignID != campaignID || link.Status != domain.LinkPending {
			continue
		}
		if lead := m.leads[link.LeadID]; lead == nil || !lead.Contactable() {
			continue
		}
		out = append(out, *link)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetLink(_ context.Context, id string) (*domain.LeadCampaignLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return nil, worker.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) MarkQueued(_ context.Context, linkID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.links[linkID]
	if l == nil || l.Status != domain.LinkPending {
		return false, nil
	}
	l.Status = domain.LinkQueued
	l.ScheduledAt = &at
	return true, nil
}

func (m *memStore) TransitionLink(_ context.Context, linkID string, from, to domain.LinkStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.links[linkID]
	if l == nil || l.Status != from {
		return false, nil
	}
	if err := l.Transition(to); err != nil {
		return false, err
	}
	return true, nil
}

func (m *memStore) MarkLinkSent(_ context.Context, linkID string, at time.Time, variant int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.links[linkID]
	if l == nil || l.Status != domain.LinkQueued {
		return false, nil
	}
	l.Status = domain.LinkSent
	l.Stage = domain.StageApproached
	l.ContactedAt = &at
	l.LastVariantIndex = variant
	return true, nil
}

func (m *memStore) FindReplyLink(_ context.Context, leadID string) (*domain.LeadCampaignLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.LeadCampaignLink
	for _, l := range m.links {
		if l.LeadID != leadID || (l.Status != domain.LinkSent && l.Status != domain.LinkReplied) {
			continue
		}
		if c := m.campaigns[l.CampaignID]; c == nil || c.Status != domain.CampaignActive {
			continue
		}
		if best == nil || (l.ContactedAt != nil && best.ContactedAt != nil && l.ContactedAt.After(*best.ContactedAt)) {
			best = l
		}
	}
	if best == nil {
		return nil, worker.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memStore) MarkReplied(_ context.Context, linkID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.links[linkID]
	if l == nil || l.Status != domain.LinkSent {
		return false, nil
	}
	l.Status = domain.LinkReplied
	l.Stage = domain.StageReplied
	m.leads[l.LeadID].Status = domain.LeadReplied
	return true, nil
}

func (m *memStore) SetNeedsHumanReview(_ context.Context, linkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[linkID].NeedsHumanReview = true
	return nil
}

func (m *memStore) IncrementAutoReplies(_ context.Context, linkID string, max int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.links[linkID]
	if l.AutoRepliesSent >= max {
		return false, nil
	}
	l.AutoRepliesSent++
	return true, nil
}

func (m *memStore) IncrementCampaignSent(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.campaigns[id]
	if c.DailySent >= c.DailyLimit {
		return false, nil
	}
	c.DailySent++
	return true, nil
}

func (m *memStore) IncrementAccountSent(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	if a.DailySent >= a.DailyLimit {
		return false, nil
	}
	a.DailySent++
	return true, nil
}

func (m *memStore) ReleaseCampaignSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.campaigns[id]; c.DailySent > 0 {
		c.DailySent--
	}
	return nil
}

func (m *memStore) ReleaseAccountSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.accounts[id]; a.DailySent > 0 {
		a.DailySent--
	}
	return nil
}

func (m *memStore) CountQueuedLinks(_ context.Context, campaignID, accountID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var byCampaign, byAccount int
	for _, l := range m.links {
		if l.Status != domain.LinkQueued {
			continue
		}
		if l.CampaignID == campaignID {
			byCampaign++
		}
		if c := m.campaigns[l.CampaignID]; c != nil && c.ChannelAccountID != nil && *c.ChannelAccountID == accountID {
			byAccount++
		}
	}
	return byCampaign, byAccount, nil
}

func (m *memStore) ResetDailyCounters(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.campaigns {
		c.DailySent = 0
	}
	for _, a := range m.accounts {
		a.DailySent = 0
	}
	return nil
}

func (m *memStore) RecordMessage(_ context.Context, msg *domain.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memStore) RecordInbound(_ context.Context, msg *domain.OutboundMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.messages {
		if existing.ExternalID == msg.ExternalID {
			return false, nil
		}
	}
	m.messages = append(m.messages, *msg)
	return true, nil
}

func (m *memStore) RecentConversation(_ context.Context, leadID string, limit int) ([]domain.OutboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OutboundMessage
	for _, msg := range m.messages {
		if msg.LeadID == leadID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) RecordAudit(_ context.Context, e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, e)
	return nil
}

func (m *memStore) CountOutcomes(_ context.Context, accountID string, since time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, failed int
	for _, msg := range m.messages {
		if msg.ChannelAccountID != accountID || msg.Direction != domain.DirectionOutbound || msg.CreatedAt.Before(since) {
			continue
		}
		total++
		if msg.Status == domain.MessageFailed {
			failed++
		}
	}
	return total, failed, nil
}

func (m *memStore) PauseActiveCampaigns(_ context.Context, accountID string) ([]string, error) {
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

// helpers for assertions

func (m *memStore) link(id string) domain.LeadCampaignLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.links[id]
}

func (m *memStore) lead(id string) domain.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.leads[id]
}

func (m *memStore) campaign(id string) domain.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.campaigns[id]
}

func (m *memStore) outbound() []domain.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OutboundMessage
	for _, msg := range m.messages {
		if msg.Direction == domain.DirectionOutbound {
			out = append(out, msg)
		}
	}
	return out
}

func (m *memStore) auditCount(action domain.AuditAction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.audits {
		if a.Action == action {
			n++
		}
	}
	return n
}

// fakeGateway records sends and fails them per phone.
type fakeGateway struct {
	mu       sync.Mutex
	sent     []sentText
	failures map[string]error
	states   map[string]gateway.State
	seq      int
}

type sentText struct {
	instance, phone, text string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failures: make(map[string]error), states: make(map[string]gateway.State)}
}

func (f *fakeGateway) SendText(_ context.Context, instance, phone, text string) (gateway.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[phone]; ok {
		return gateway.SendResult{}, err
	}
	f.seq++
	f.sent = append(f.sent, sentText{instance, phone, text})
	return gateway.SendResult{ExternalID: "ext-" + string(rune('a'+f.seq)), Status: "PENDING"}, nil
}

func (f *fakeGateway) ConnectionState(_ context.Context, instance string) (gateway.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[instance]; ok {
		return s, nil
	}
	return gateway.StateOpen, nil
}

func (f *fakeGateway) SetPresence(context.Context, string, string, gateway.Presence) error {
	return nil
}

func (f *fakeGateway) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
