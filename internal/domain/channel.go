package domain

import "time"

// ChannelStatus is the connection state of a channel account.
type ChannelStatus string

const (
	ChannelDisconnected ChannelStatus = "disconnected"
	ChannelConnecting   ChannelStatus = "connecting"
	ChannelConnected    ChannelStatus = "connected"
	ChannelBanned       ChannelStatus = "banned"
)

// ChannelAccount is a single outbound messaging identity (one connected
// phone number). Its daily cap is independent of every campaign's cap.
type ChannelAccount struct {
	ID             string        `json:"id" db:"id"`
	OrganizationID string        `json:"organization_id" db:"organization_id"`
	Name           string        `json:"name" db:"name"`
	Instance       string        `json:"instance" db:"instance"`
	Phone          string        `json:"phone" db:"phone"`
	Status         ChannelStatus `json:"status" db:"status"`
	DailyLimit     int           `json:"daily_limit" db:"daily_limit"`
	DailySent      int           `json:"daily_sent" db:"daily_sent"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// Connected reports whether the account can send right now.
func (a *ChannelAccount) Connected() bool {
	return a.Status == ChannelConnected
}

// Remaining returns how many more messages the account may send today.
func (a *ChannelAccount) Remaining() int {
	if r := a.DailyLimit - a.DailySent; r > 0 {
		return r
	}
	return 0
}

// WarmupStep maps an inclusive day range to a daily send limit.
// ToDay == 0 means the range is open-ended.
type WarmupStep struct {
	FromDay int `json:"from_day" yaml:"from_day"`
	ToDay   int `json:"to_day" yaml:"to_day"`
	Limit   int `json:"limit" yaml:"limit"`
}

// Contains reports whether day falls inside the step.
func (s WarmupStep) Contains(day int) bool {
	if day < s.FromDay {
		return false
	}
	return s.ToDay == 0 || day <= s.ToDay
}

// WarmupProgression is the progressive daily-limit ramp of one channel account.
type WarmupProgression struct {
	ChannelAccountID  string       `json:"channel_account_id" db:"channel_account_id"`
	CurrentDay        int          `json:"current_day" db:"current_day"`
	CurrentDailyLimit int          `json:"current_daily_limit" db:"current_daily_limit"`
	Steps             []WarmupStep `json:"steps" db:"steps"`
	Completed         bool         `json:"completed" db:"completed"`
	StartedAt         time.Time    `json:"started_at" db:"started_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}
