package worker

import (
	"time"

	"github.com/ignite/prospect-cadence/internal/domain"
)

// Job kinds.
const (
	KindCadence = "cadence"
	KindAIReply = "ai_reply"
	KindInbound = "inbound"
	KindTick    = "tick"
)

// SendJob asks the send worker to deliver one message.
type SendJob struct {
	Kind       string               `json:"kind"`
	LinkID     string               `json:"link_id,omitempty"`
	CampaignID string               `json:"campaign_id"`
	LeadID     string               `json:"lead_id"`
	AccountID  string               `json:"account_id"`
	Text       string               `json:"text,omitempty"`
	Source     domain.MessageSource `json:"source"`
}

// InboundEvent is a message received from a lead through the gateway.
type InboundEvent struct {
	Instance   string    `json:"instance"`
	ExternalID string    `json:"external_id"`
	Phone      string    `json:"phone"`
	PushName   string    `json:"push_name,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// TickJob triggers one periodic task.
type TickJob struct {
	Task string    `json:"task"`
	At   time.Time `json:"at"`
}
