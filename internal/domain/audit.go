package domain

import "time"

// AuditAction names a state change recorded in the audit log.
type AuditAction string

const (
	AuditLinkQueued       AuditAction = "link_queued"
	AuditLinkSent         AuditAction = "link_sent"
	AuditLinkReverted     AuditAction = "link_reverted"
	AuditLinkSkipped      AuditAction = "link_skipped"
	AuditLinkReplied      AuditAction = "link_replied"
	AuditLeadBlocked      AuditAction = "lead_blocked"
	AuditCampaignPaused   AuditAction = "campaign_paused"
	AuditCampaignResumed  AuditAction = "campaign_resumed"
	AuditWarmupAdvanced   AuditAction = "warmup_advanced"
	AuditWarmupOverridden AuditAction = "warmup_overridden"
	AuditWarmupStarted    AuditAction = "warmup_started"
	AuditHumanReview      AuditAction = "human_review_requested"
	AuditAutoReply        AuditAction = "auto_reply_scheduled"
	AuditChannelStatus    AuditAction = "channel_status_changed"
)

// AuditEntry pairs every lead, link, campaign or account state change with a
// durable record.
type AuditEntry struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	EntityType     string         `json:"entity_type" db:"entity_type"`
	EntityID       string         `json:"entity_id" db:"entity_id"`
	Action         AuditAction    `json:"action" db:"action"`
	Details        map[string]any `json:"details" db:"details"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// AlertSeverity ranks operator alerts.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is an operator-facing notification.
type Alert struct {
	Severity       AlertSeverity `json:"severity"`
	Kind           string        `json:"kind"`
	Title          string        `json:"title"`
	Body           string        `json:"body"`
	OrganizationID string        `json:"organization_id,omitempty"`
	EntityID       string        `json:"entity_id,omitempty"`
	RaisedAt       time.Time     `json:"raised_at"`
}
