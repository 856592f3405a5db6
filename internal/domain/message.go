package domain

import (
	"fmt"
	"time"
)

// MessageDirection tells whether a message left or reached the channel account.
type MessageDirection string

const (
	DirectionOutbound MessageDirection = "outbound"
	DirectionInbound  MessageDirection = "inbound"
)

// MessageStatus enumerates the delivery lifecycle of a message.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

var messageTransitions = map[MessageStatus][]MessageStatus{
	MessagePending:   {MessageSent, MessageFailed},
	MessageSent:      {MessageDelivered, MessageRead, MessageFailed},
	MessageDelivered: {MessageRead},
	MessageRead:      nil,
	MessageFailed:    nil,
}

// CanTransition reports whether a message may move from s to next.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	return contains(messageTransitions[s], next)
}

// MessageSource tags what produced a message.
type MessageSource string

const (
	SourceManual     MessageSource = "manual"
	SourceAIAuto     MessageSource = "ai_auto"
	SourceAIApproved MessageSource = "ai_approved"
	SourceCadence    MessageSource = "cadence"
	SourceWebhook    MessageSource = "webhook"
)

// OutboundMessage is one append-only message row. Failed sends are kept:
// the failure history feeds the anti-ban monitor.
type OutboundMessage struct {
	ID               string           `json:"id" db:"id"`
	OrganizationID   string           `json:"organization_id" db:"organization_id"`
	LeadID           string           `json:"lead_id" db:"lead_id"`
	CampaignID       *string          `json:"campaign_id" db:"campaign_id"`
	ChannelAccountID string           `json:"channel_account_id" db:"channel_account_id"`
	Direction        MessageDirection `json:"direction" db:"direction"`
	Content          string           `json:"content" db:"content"`
	Status           MessageStatus    `json:"status" db:"status"`
	Source           MessageSource    `json:"source" db:"source"`
	ExternalID       string           `json:"external_id,omitempty" db:"external_id"`
	Error            string           `json:"error,omitempty" db:"error"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	SentAt           *time.Time       `json:"sent_at" db:"sent_at"`
	DeliveredAt      *time.Time       `json:"delivered_at" db:"delivered_at"`
	ReadAt           *time.Time       `json:"read_at" db:"read_at"`
}

// Transition moves the message to next and stamps the matching timestamp.
func (m *OutboundMessage) Transition(next MessageStatus, at time.Time) error {
	if !m.Status.CanTransition(next) {
		return fmt.Errorf("%w: message %s %s -> %s", ErrIllegalTransition, m.ID, m.Status, next)
	}
	m.Status = next
	switch next {
	case MessageSent:
		m.SentAt = &at
	case MessageDelivered:
		m.DeliveredAt = &at
	case MessageRead:
		m.ReadAt = &at
	}
	return nil
}
