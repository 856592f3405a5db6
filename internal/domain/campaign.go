package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrIllegalTransition is returned when a status change is not in the
// entity's transition table.
var ErrIllegalTransition = errors.New("illegal status transition")

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignActive},
	CampaignActive:    {CampaignPaused, CampaignCompleted},
	CampaignPaused:    {CampaignActive, CampaignCompleted},
	CampaignCompleted: nil,
}

// CanTransition reports whether a campaign may move from s to next.
func (s CampaignStatus) CanTransition(next CampaignStatus) bool {
	return contains(campaignTransitions[s], next)
}

// Window is the allowed sending window of a campaign. Start and End are
// wall-clock "HH:MM" values; End before Start means the window wraps midnight.
type Window struct {
	StartTime string         `json:"start_time" db:"window_start"`
	EndTime   string         `json:"end_time" db:"window_end"`
	Days      []time.Weekday `json:"days" db:"window_days"`
}

// AISettings controls automatic replies to inbound messages.
type AISettings struct {
	Enabled        bool    `json:"enabled" db:"ai_enabled"`
	MaxAutoReplies int     `json:"max_auto_replies" db:"ai_max_auto_replies"`
	SystemPrompt   string  `json:"system_prompt" db:"ai_system_prompt"`
	Temperature    float64 `json:"temperature" db:"ai_temperature"`
}

// Campaign is an outbound prospecting campaign bound to one channel account.
type Campaign struct {
	ID               string         `json:"id" db:"id"`
	OrganizationID   string         `json:"organization_id" db:"organization_id"`
	Name             string         `json:"name" db:"name"`
	Objective        string         `json:"objective" db:"objective"`
	Status           CampaignStatus `json:"status" db:"status"`
	Window           Window         `json:"window"`
	Timezone         string         `json:"timezone" db:"timezone"`
	MinIntervalSec   int            `json:"min_interval_sec" db:"min_interval_sec"`
	MaxIntervalSec   int            `json:"max_interval_sec" db:"max_interval_sec"`
	DailyLimit       int            `json:"daily_limit" db:"daily_limit"`
	DailySent        int            `json:"daily_sent" db:"daily_sent"`
	Variants         []string       `json:"variants" db:"variants"`
	AI               AISettings     `json:"ai"`
	ChannelAccountID *string        `json:"channel_account_id" db:"channel_account_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Remaining returns how many more messages the campaign may send today.
func (c *Campaign) Remaining() int {
	if r := c.DailyLimit - c.DailySent; r > 0 {
		return r
	}
	return 0
}

// Location resolves the campaign timezone, falling back to UTC.
func (c *Campaign) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks the invariants a campaign must hold before activation.
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.DailyLimit <= 0 {
		return fmt.Errorf("daily limit must be positive")
	}
	if c.MinIntervalSec < 0 || c.MaxIntervalSec < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	if c.MinIntervalSec > c.MaxIntervalSec {
		return fmt.Errorf("min interval %ds exceeds max interval %ds", c.MinIntervalSec, c.MaxIntervalSec)
	}
	if len(c.Variants) == 0 {
		return fmt.Errorf("at least one message variant is required")
	}
	if c.AI.MaxAutoReplies < 0 {
		return fmt.Errorf("max auto replies must not be negative")
	}
	return nil
}

// LinkStatus is the dispatch state of one lead within one campaign.
type LinkStatus string

const (
	LinkPending   LinkStatus = "pending"
	LinkQueued    LinkStatus = "queued"
	LinkSent      LinkStatus = "sent"
	LinkReplied   LinkStatus = "replied"
	LinkConverted LinkStatus = "converted"
	LinkRejected  LinkStatus = "rejected"
	LinkSkipped   LinkStatus = "skipped"
)

// linkTransitions is the single authoritative transition table for
// LeadCampaignLink. Skipped, converted and rejected are terminal.
var linkTransitions = map[LinkStatus][]LinkStatus{
	LinkPending:   {LinkQueued, LinkSkipped},
	LinkQueued:    {LinkSent, LinkPending, LinkSkipped},
	LinkSent:      {LinkReplied, LinkRejected},
	LinkReplied:   {LinkConverted, LinkRejected},
	LinkConverted: nil,
	LinkRejected:  nil,
	LinkSkipped:   nil,
}

// CanTransition reports whether a link may move from s to next.
func (s LinkStatus) CanTransition(next LinkStatus) bool {
	return contains(linkTransitions[s], next)
}

// IsTerminal reports whether no further transitions are possible.
func (s LinkStatus) IsTerminal() bool {
	return len(linkTransitions[s]) == 0
}

// PipelineStage is the sales stage of a lead within a campaign.
type PipelineStage string

const (
	StageNew        PipelineStage = "new"
	StageApproached PipelineStage = "approached"
	StageReplied    PipelineStage = "replied"
	StageInterested PipelineStage = "interested"
	StageProposal   PipelineStage = "proposal"
	StageWon        PipelineStage = "won"
	StageLost       PipelineStage = "lost"
)

// NoVariant marks a link that has not been sent any variant yet.
const NoVariant = -1

// LeadCampaignLink tracks one lead's progress through one campaign.
type LeadCampaignLink struct {
	ID               string        `json:"id" db:"id"`
	LeadID           string        `json:"lead_id" db:"lead_id"`
	CampaignID       string        `json:"campaign_id" db:"campaign_id"`
	Status           LinkStatus    `json:"status" db:"status"`
	Stage            PipelineStage `json:"stage" db:"stage"`
	Priority         int           `json:"priority" db:"priority"`
	LastVariantIndex int           `json:"last_variant_index" db:"last_variant_index"`
	ScheduledAt      *time.Time    `json:"scheduled_at" db:"scheduled_at"`
	ContactedAt      *time.Time    `json:"contacted_at" db:"contacted_at"`
	AutoRepliesSent  int           `json:"auto_replies_sent" db:"auto_replies_sent"`
	NeedsHumanReview bool          `json:"needs_human_review" db:"needs_human_review"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Transition moves the link to next, or returns ErrIllegalTransition.
func (l *LeadCampaignLink) Transition(next LinkStatus) error {
	if !l.Status.CanTransition(next) {
		return fmt.Errorf("%w: link %s %s -> %s", ErrIllegalTransition, l.ID, l.Status, next)
	}
	l.Status = next
	return nil
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
