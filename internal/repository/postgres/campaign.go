package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/scoring"
	"github.com/ignite/prospect-cadence/internal/worker"
)

const campaignColumns = `
	id, organization_id, name, objective, status,
	window_start, window_end, window_days, timezone,
	min_interval_sec, max_interval_sec, daily_limit, daily_sent, variants,
	ai_enabled, ai_max_auto_replies, ai_system_prompt, ai_temperature,
	channel_account_id, created_at, updated_at`

func scanCampaign(row scanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var (
		days      pq.Int64Array
		variants  pq.StringArray
		accountID sql.NullString
	)
	err := row.Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.Objective, &c.Status,
		&c.Window.StartTime, &c.Window.EndTime, &days, &c.Timezone,
		&c.MinIntervalSec, &c.MaxIntervalSec, &c.DailyLimit, &c.DailySent, &variants,
		&c.AI.Enabled, &c.AI.MaxAutoReplies, &c.AI.SystemPrompt, &c.AI.Temperature,
		&accountID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Window.Days = make([]time.Weekday, 0, len(days))
	for _, d := range days {
		c.Window.Days = append(c.Window.Days, time.Weekday(d))
	}
	c.Variants = []string(variants)
	if accountID.Valid {
		c.ChannelAccountID = &accountID.String
	}
	return c, nil
}

func weekdays(days []time.Weekday) pq.Int64Array {
	out := make(pq.Int64Array, 0, len(days))
	for _, d := range days {
		out = append(out, int64(d))
	}
	return out
}

// ListActiveCampaigns returns every campaign in status active.
func (s *Store) ListActiveCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(s.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, worker.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// CreateCampaign inserts the campaign and enrolls leadIDs as pending links in
// one transaction. Link priority is the lead's score under rules; nil rules
// use the default scoring rules.
func (s *Store) CreateCampaign(ctx context.Context, c *domain.Campaign, leadIDs []string, rules []scoring.Rule) (int, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO campaigns (
			id, organization_id, name, objective, status,
			window_start, window_end, window_days, timezone,
			min_interval_sec, max_interval_sec, daily_limit, daily_sent, variants,
			ai_enabled, ai_max_auto_replies, ai_system_prompt, ai_temperature,
			channel_account_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,0,$13,$14,$15,$16,$17,$18,$19,$19)
	`, c.ID, c.OrganizationID, c.Name, c.Objective, c.Status,
		c.Window.StartTime, c.Window.EndTime, weekdays(c.Window.Days), c.Timezone,
		c.MinIntervalSec, c.MaxIntervalSec, c.DailyLimit, pq.StringArray(c.Variants),
		c.AI.Enabled, c.AI.MaxAutoReplies, c.AI.SystemPrompt, c.AI.Temperature,
		nullString(c.ChannelAccountID), now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert campaign: %w", err)
	}

	enrolled, err := s.enrollLeads(ctx, tx, c, leadIDs, rules, now)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return enrolled, nil
}

// SetCampaignStatus moves a campaign from one status to another. It returns
// false when the campaign was not in from.
func (s *Store) SetCampaignStatus(ctx context.Context, id string, from, to domain.CampaignStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("%w: campaign %s -> %s", domain.ErrIllegalTransition, from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("set campaign status: %w", err)
	}
	return affected(res)
}

// PauseActiveCampaigns pauses every active campaign of the account.
func (s *Store) PauseActiveCampaigns(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE campaigns SET status = 'paused', updated_at = NOW()
		WHERE channel_account_id = $1 AND status = 'active'
		RETURNING id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("pause campaigns: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) IncrementCampaignSent(ctx context.Context, campaignID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET daily_sent = daily_sent + 1, updated_at = NOW()
		WHERE id = $1 AND daily_sent < daily_limit
	`, campaignID)
	if err != nil {
		return false, fmt.Errorf("increment campaign sent: %w", err)
	}
	return affected(res)
}

// ReleaseCampaignSent returns a reserved send to the campaign's daily counter.
func (s *Store) ReleaseCampaignSent(ctx context.Context, campaignID string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET daily_sent = daily_sent - 1, updated_at = NOW()
		WHERE id = $1 AND daily_sent > 0
	`, campaignID); err != nil {
		return fmt.Errorf("release campaign sent: %w", err)
	}
	return nil
}

// ResetDailyCounters zeroes campaign and account counters for a new day.
func (s *Store) ResetDailyCounters(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE campaigns SET daily_sent = 0 WHERE daily_sent <> 0`); err != nil {
		return fmt.Errorf("reset campaign counters: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE channel_accounts SET daily_sent = 0 WHERE daily_sent <> 0`); err != nil {
		return fmt.Errorf("reset account counters: %w", err)
	}
	return tx.Commit()
}
