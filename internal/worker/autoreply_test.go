package worker_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/queue"
	"github.com/ignite/prospect-cadence/internal/replygen"
	"github.com/ignite/prospect-cadence/internal/worker"
)

type fakeGenerator struct {
	reply   string
	err     error
	calls   int
	history []replygen.Turn
}

func (f *fakeGenerator) Generate(_ context.Context, _ replygen.LeadContext, history []replygen.Turn, _ replygen.PromptConfig) (string, error) {
	f.calls++
	f.history = history
	return f.reply, f.err
}

// replyFixture has one lead that already received the first cadence message.
func replyFixture(t *testing.T, maxReplies int) *harness {
	t.Helper()
	h := newHarness(t)
	c := h.store.campaigns["camp-1"]
	c.AI = domain.AISettings{Enabled: true, MaxAutoReplies: maxReplies, SystemPrompt: "Seja breve."}
	h.addLead("l0", "5511999990000", "camp-1", businessHours)

	contacted := time.Now().Add(-time.Hour)
	link := h.store.links["link-l0-camp-1"]
	link.Status = domain.LinkSent
	link.ContactedAt = &contacted
	h.store.messages = append(h.store.messages, domain.OutboundMessage{
		ID: "m0", LeadID: "l0", ChannelAccountID: "acc-1", CampaignID: strPtr("camp-1"),
		Direction: domain.DirectionOutbound, Status: domain.MessageSent, Content: "Oi Ana!",
		CreatedAt: contacted,
	})
	return h
}

func inbound(id string) worker.InboundEvent {
	return worker.InboundEvent{Instance: "inst-1", ExternalID: id, Phone: "5511999990000", Text: "Oi, quanto custa?"}
}

func TestInboundSchedulesAutoReply(t *testing.T) {
	h := replyFixture(t, 3)
	ctx := context.Background()
	gen := &fakeGenerator{reply: "  Claro! Posso te mandar os valores?  "}
	gate := worker.NewAutoReplyGate(h.store, h.queue, gen, h.alerts, 0, rand.New(rand.NewPCG(5, 6)))

	outcome, err := gate.HandleInbound(ctx, inbound("in-1"))
	require.NoError(t, err)
	assert.Equal(t, worker.OutcomeScheduled, outcome)

	link := h.store.link("link-l0-camp-1")
	assert.Equal(t, domain.LinkReplied, link.Status)
	assert.Equal(t, 1, link.AutoRepliesSent)
	assert.Equal(t, domain.LeadReplied, h.store.lead("l0").Status)

	require.Len(t, gen.history, 2)
	assert.Equal(t, replygen.RoleUs, gen.history[0].Role)
	assert.Equal(t, replygen.RoleLead, gen.history[1].Role)

	// The reply waits for a typing delay of at least thirty seconds.
	early, err := h.queue.Dequeue(ctx, queue.MessageSend, time.Now().Add(25*time.Second))
	require.NoError(t, err)
	assert.Nil(t, early)

	job, err := h.queue.Dequeue(ctx, queue.MessageSend, time.Now().Add(4*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, worker.KindAIReply, job.Kind)
	require.NoError(t, h.sender.Handle(ctx, job))

	require.Len(t, h.gw.sent, 1)
	assert.Equal(t, "Claro! Posso te mandar os valores?", h.gw.sent[0].text)

	out := h.store.outbound()
	last := out[len(out)-1]
	assert.Equal(t, domain.SourceAIAuto, last.Source)
	assert.Equal(t, domain.MessageSent, last.Status)
	// Replies do not consume the cadence budget.
	assert.Zero(t, h.store.campaign("camp-1").DailySent)
	assert.Zero(t, h.store.accounts["acc-1"].DailySent)
	assert.Equal(t, domain.LinkReplied, h.store.link("link-l0-camp-1").Status)
}

func TestDuplicateInboundIsNoop(t *testing.T) {
	h := replyFixture(t, 3)
	ctx := context.Background()
	gen := &fakeGenerator{reply: "Oi!"}
	gate := worker.NewAutoReplyGate(h.store, h.queue, gen, h.alerts, 0, rand.New(rand.NewPCG(5, 6)))

	_, err := gate.HandleInbound(ctx, inbound("in-1"))
	require.NoError(t, err)
	outcome, err := gate.HandleInbound(ctx, inbound("in-1"))
	require.NoError(t, err)

	assert.Equal(t, worker.OutcomeDuplicate, outcome)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 1, h.store.link("link-l0-camp-1").AutoRepliesSent)
	n, err := h.queue.Len(ctx, queue.MessageSend)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAutoReplyCapEscalatesToHuman(t *testing.T) {
	h := replyFixture(t, 2)
	ctx := context.Background()
	h.store.links["link-l0-camp-1"].AutoRepliesSent = 2
	gen := &fakeGenerator{reply: "Oi!"}
	gate := worker.NewAutoReplyGate(h.store, h.queue, gen, h.alerts, 0, rand.New(rand.NewPCG(5, 6)))
	before := len(h.store.outbound())

	outcome, err := gate.HandleInbound(ctx, inbound("in-9"))
	require.NoError(t, err)
	assert.Equal(t, worker.OutcomeReview, outcome)

	link := h.store.link("link-l0-camp-1")
	assert.True(t, link.NeedsHumanReview)
	assert.Equal(t, 2, link.AutoRepliesSent)
	assert.Zero(t, gen.calls)
	assert.Len(t, h.store.outbound(), before)
	assert.Contains(t, h.alerts.kinds(), "human_review")
	assert.Equal(t, 1, h.store.auditCount(domain.AuditHumanReview))

	n, err := h.queue.Len(ctx, queue.MessageSend)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMissingGeneratorEscalates(t *testing.T) {
	h := replyFixture(t, 3)
	gate := worker.NewAutoReplyGate(h.store, h.queue, nil, h.alerts, 0, rand.New(rand.NewPCG(5, 6)))

	outcome, err := gate.HandleInbound(context.Background(), inbound("in-1"))
	require.NoError(t, err)
	assert.Equal(t, worker.OutcomeReview, outcome)
	assert.True(t, h.store.link("link-l0-camp-1").NeedsHumanReview)
}

func TestGeneratorFailureUsesFallback(t *testing.T) {
	h := replyFixture(t, 3)
	ctx := context.Background()
	gen := &fakeGenerator{err: errors.New("throttled")}
	gate := worker.NewAutoReplyGate(h.store, h.queue, gen, h.alerts, 0, rand.New(rand.NewPCG(5, 6)))

	outcome, err := gate.HandleInbound(ctx, inbound("in-1"))
	require.NoError(t, err)
	assert.Equal(t, worker.OutcomeScheduled, outcome)

	job, err := h.queue.Dequeue(ctx, queue.MessageSend, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, job)
	var sj worker.SendJob
	require.NoError(t, job.Decode(&sj))
	assert.Equal(t, replygen.FallbackReply, sj.Text)
}

func TestAIDisabledLeavesReplyToHuman(t *testing.T) {
	h := replyFixture(t, 3)
	h.store.campaigns["camp-1"].AI.Enabled = false
	gen := &fakeGenerator{reply: "Oi!"}
	gate := worker.NewAutoReplyGate(h.store, h.queue, gen, h.alerts, 0, rand.New(rand.NewPCG(5, 6)))

	outcome, err := gate.HandleInbound(context.Background(), inbound("in-1"))
	require.NoError(t, err)
	assert.Equal(t, worker.OutcomeHuman, outcome)
	link := h.store.link("link-l0-camp-1")
	assert.Equal(t, domain.LinkReplied, link.Status)
	assert.True(t, link.NeedsHumanReview)
	assert.Equal(t, 1, h.store.auditCount(domain.AuditHumanReview))
	assert.Zero(t, gen.calls)
}

func TestInboundFromUnknownNumberIgnored(t *testing.T) {
	h := replyFixture(t, 3)
	gate := worker.NewAutoReplyGate(h.store, h.queue, &fakeGenerator{}, h.alerts, 0, rand.New(rand.NewPCG(5, 6)))

	ev := inbound("in-1")
	ev.Phone = "5521888880000"
	outcome, err := gate.HandleInbound(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, worker.OutcomeUnknownLead, outcome)
	assert.Len(t, h.store.messages, 1)
}

func TestInboundHandlerDecodesQueueJob(t *testing.T) {
	h := replyFixture(t, 3)
	ctx := context.Background()
	gate := worker.NewAutoReplyGate(h.store, h.queue, &fakeGenerator{reply: "Oi!"}, h.alerts, 0, rand.New(rand.NewPCG(5, 6)))

	_, err := h.queue.Enqueue(ctx, queue.AIReply, worker.KindInbound, inbound("in-1"), 0)
	require.NoError(t, err)
	job, err := h.queue.Dequeue(ctx, queue.AIReply, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, gate.Handle(ctx, job))
	assert.Equal(t, 1, h.store.link("link-l0-camp-1").AutoRepliesSent)
}
