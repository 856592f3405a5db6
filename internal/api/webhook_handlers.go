package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/gateway"
	"github.com/ignite/prospect-cadence/internal/pkg/httputil"
	"github.com/ignite/prospect-cadence/internal/pkg/logger"
	"github.com/ignite/prospect-cadence/internal/queue"
	"github.com/ignite/prospect-cadence/internal/worker"
)

// Gateway webhook event names.
const (
	eventMessagesUpsert   = "messages.upsert"
	eventMessagesUpdate   = "messages.update"
	eventConnectionUpdate = "connection.update"
)

type webhookEvent struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type messageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type upsertData struct {
	Key      messageKey `json:"key"`
	PushName string     `json:"pushName"`
	Message  struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
	} `json:"message"`
	MessageTimestamp int64 `json:"messageTimestamp"`
}

func (d upsertData) text() string {
	if d.Message.Conversation != "" {
		return d.Message.Conversation
	}
	return d.Message.ExtendedTextMessage.Text
}

type updateData struct {
	KeyID  string     `json:"keyId"`
	Key    messageKey `json:"key"`
	Status string     `json:"status"`
}

type connectionData struct {
	State string `json:"state"`
}

// HandleGatewayWebhook receives gateway events for one instance. Inbound
// messages are queued for the auto-reply gate, delivery receipts advance
// message status and connection updates sync the account status.
//
//	POST /webhooks/gateway/{instance}
func (h *Handlers) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.webhookAuthorized(r) {
		httputil.Unauthorized(w)
		return
	}

	var ev webhookEvent
	if !httputil.Decode(w, r, &ev) {
		return
	}
	instance := chi.URLParam(r, "instance")
	if ev.Instance != "" && ev.Instance != instance {
		httputil.BadRequest(w, "instance mismatch")
		return
	}

	ctx := r.Context()
	account, err := h.store.GetChannelAccountByInstance(ctx, instance)
	if errors.Is(err, worker.ErrNotFound) {
		httputil.NotFound(w, "unknown instance")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	switch strings.ToLower(ev.Event) {
	case eventMessagesUpsert:
		h.handleUpsert(w, r, account, ev.Data)
	case eventMessagesUpdate:
		h.handleUpdate(w, r, ev.Data)
	case eventConnectionUpdate:
		h.handleConnection(w, r, account, ev.Data)
	default:
		httputil.OK(w, map[string]string{"status": "ignored"})
	}
}

func (h *Handlers) webhookAuthorized(r *http.Request) bool {
	if h.opts.WebhookSecret == "" {
		return true
	}
	got := r.Header.Get("X-Webhook-Secret")
	if got == "" {
		got = r.Header.Get("apikey")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.WebhookSecret)) == 1
}

func (h *Handlers) handleUpsert(w http.ResponseWriter, r *http.Request, account *domain.ChannelAccount, raw json.RawMessage) {
	var d upsertData
	if err := json.Unmarshal(raw, &d); err != nil {
		httputil.BadRequest(w, "invalid message payload")
		return
	}
	if d.Key.FromMe || d.Key.ID == "" || isGroupJID(d.Key.RemoteJID) || d.text() == "" {
		httputil.OK(w, map[string]string{"status": "ignored"})
		return
	}

	phone, err := gateway.NormalizePhone(jidUser(d.Key.RemoteJID), h.opts.DefaultRegion)
	if err != nil {
		logger.Warn("inbound sender not normalizable", "instance", account.Instance, "error", err)
		httputil.OK(w, map[string]string{"status": "ignored"})
		return
	}

	received := h.now()
	if d.MessageTimestamp > 0 {
		received = time.Unix(d.MessageTimestamp, 0)
	}
	ev := worker.InboundEvent{
		Instance:   account.Instance,
		ExternalID: d.Key.ID,
		Phone:      phone,
		PushName:   d.PushName,
		Text:       d.text(),
		ReceivedAt: received,
	}
	job, err := h.queue.Enqueue(r.Context(), queue.AIReply, worker.KindInbound, ev, 0)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Accepted(w, map[string]string{"status": "queued", "job_id": job.ID})
}

func (h *Handlers) handleUpdate(w http.ResponseWriter, r *http.Request, raw json.RawMessage) {
	var d updateData
	if err := json.Unmarshal(raw, &d); err != nil {
		httputil.BadRequest(w, "invalid update payload")
		return
	}
	id := d.KeyID
	if id == "" {
		id = d.Key.ID
	}
	next, ok := receiptStatus(d.Status)
	if id == "" || !ok {
		httputil.OK(w, map[string]string{"status": "ignored"})
		return
	}

	changed, err := h.store.UpdateMessageStatus(r.Context(), id, next, h.now())
	if errors.Is(err, worker.ErrNotFound) {
		httputil.OK(w, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"status": "ok", "changed": changed})
}

func (h *Handlers) handleConnection(w http.ResponseWriter, r *http.Request, account *domain.ChannelAccount, raw json.RawMessage) {
	var d connectionData
	if err := json.Unmarshal(raw, &d); err != nil {
		httputil.BadRequest(w, "invalid connection payload")
		return
	}
	next := channelStatus(gateway.State(strings.ToLower(d.State)))
	if next == account.Status || account.Status == domain.ChannelBanned {
		httputil.OK(w, map[string]any{"status": "ok", "changed": false})
		return
	}

	ctx := r.Context()
	if err := h.store.UpdateChannelStatus(ctx, account.ID, next); err != nil {
		httputil.InternalError(w, err)
		return
	}
	h.audit(r, account.OrganizationID, "channel_account", account.ID, domain.AuditChannelStatus,
		map[string]any{"from": account.Status, "to": next, "source": "webhook"})
	logger.Info("channel account status changed", "account", account.ID, "from", account.Status, "to", next)
	httputil.OK(w, map[string]any{"status": "ok", "changed": true})
}

func (h *Handlers) audit(r *http.Request, orgID, entityType, entityID string, action domain.AuditAction, details map[string]any) {
	err := h.store.RecordAudit(r.Context(), domain.AuditEntry{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		EntityType:     entityType,
		EntityID:       entityID,
		Action:         action,
		Details:        details,
		CreatedAt:      h.now(),
	})
	if err != nil {
		logger.Warn("audit write failed", "entity", entityType, "id", entityID, "action", action, "error", err)
	}
}

// receiptStatus maps gateway acknowledgement codes to message statuses.
func receiptStatus(s string) (domain.MessageStatus, bool) {
	switch strings.ToUpper(s) {
	case "SERVER_ACK":
		return domain.MessageSent, true
	case "DELIVERY_ACK":
		return domain.MessageDelivered, true
	case "READ", "PLAYED":
		return domain.MessageRead, true
	case "ERROR":
		return domain.MessageFailed, true
	}
	return "", false
}

func channelStatus(s gateway.State) domain.ChannelStatus {
	switch s {
	case gateway.StateOpen:
		return domain.ChannelConnected
	case gateway.StateConnecting:
		return domain.ChannelConnecting
	default:
		return domain.ChannelDisconnected
	}
}

func jidUser(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	return jid
}

func isGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us") || strings.HasSuffix(jid, "@broadcast")
}
