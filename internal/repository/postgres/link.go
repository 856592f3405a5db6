package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/worker"
)

const linkColumns = `
	l.id, l.lead_id, l.campaign_id, l.status, l.stage, l.priority, l.last_variant_index,
	l.scheduled_at, l.contacted_at, l.auto_replies_sent, l.needs_human_review,
	l.created_at, l.updated_at`

func scanLink(row scanner) (*domain.LeadCampaignLink, error) {
	l := &domain.LeadCampaignLink{}
	var scheduled, contacted sql.NullTime
	err := row.Scan(
		&l.ID, &l.LeadID, &l.CampaignID, &l.Status, &l.Stage, &l.Priority, &l.LastVariantIndex,
		&scheduled, &contacted, &l.AutoRepliesSent, &l.NeedsHumanReview,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.ScheduledAt = timePtr(scheduled)
	l.ContactedAt = timePtr(contacted)
	return l, nil
}

func (s *Store) SelectPendingLinks(ctx context.Context, campaignID string, limit int) ([]domain.LeadCampaignLink, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+linkColumns+`
		FROM lead_campaign_links l
		JOIN leads ld ON ld.id = l.lead_id
		WHERE l.campaign_id = $1
		  AND l.status = 'pending'
		  AND ld.do_not_contact = FALSE
		  AND ld.status <> 'blocked'
		  AND ld.phone <> ''
		ORDER BY l.priority DESC, l.created_at ASC
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending links: %w", err)
	}
	defer rows.Close()

	var out []domain.LeadCampaignLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *Store) GetLink(ctx context.Context, id string) (*domain.LeadCampaignLink, error) {
	l, err := scanLink(s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM lead_campaign_links l WHERE l.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, worker.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return l, nil
}

func (s *Store) MarkQueued(ctx context.Context, linkID string, scheduledAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE lead_campaign_links SET status = 'queued', scheduled_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, linkID, scheduledAt)
	if err != nil {
		return false, fmt.Errorf("mark queued: %w", err)
	}
	return affected(res)
}

// TransitionLink checks the move against the link transition table before
// issuing the guarded update.
func (s *Store) TransitionLink(ctx context.Context, linkID string, from, to domain.LinkStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("%w: link %s %s -> %s", domain.ErrIllegalTransition, linkID, from, to)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE lead_campaign_links SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, linkID, from, to)
	if err != nil {
		return false, fmt.Errorf("transition link: %w", err)
	}
	return affected(res)
}

func (s *Store) MarkLinkSent(ctx context.Context, linkID string, contactedAt time.Time, variantIndex int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE lead_campaign_links SET
			status = 'sent', stage = 'approached', contacted_at = $2,
			last_variant_index = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'queued'
	`, linkID, contactedAt, variantIndex)
	if err != nil {
		return false, fmt.Errorf("mark link sent: %w", err)
	}
	return affected(res)
}

func (s *Store) FindReplyLink(ctx context.Context, leadID string) (*domain.LeadCampaignLink, error) {
	l, err := scanLink(s.db.QueryRowContext(ctx, `
		SELECT `+linkColumns+`
		FROM lead_campaign_links l
		JOIN campaigns c ON c.id = l.campaign_id
		WHERE l.lead_id = $1
		  AND l.status IN ('sent', 'replied')
		  AND c.status = 'active'
		ORDER BY l.contacted_at DESC NULLS LAST
		LIMIT 1
	`, leadID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, worker.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find reply link: %w", err)
	}
	return l, nil
}

// MarkReplied moves the link and its lead to replied together.
func (s *Store) MarkReplied(ctx context.Context, linkID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var leadID string
	err = tx.QueryRowContext(ctx, `
		UPDATE lead_campaign_links SET status = 'replied', stage = 'replied', updated_at = NOW()
		WHERE id = $1 AND status = 'sent'
		RETURNING lead_id
	`, linkID).Scan(&leadID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark link replied: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE leads SET status = 'replied', updated_at = NOW()
		WHERE id = $1 AND status <> 'blocked'
	`, leadID); err != nil {
		return false, fmt.Errorf("mark lead replied: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (s *Store) SetNeedsHumanReview(ctx context.Context, linkID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE lead_campaign_links SET needs_human_review = TRUE, updated_at = NOW()
		WHERE id = $1
	`, linkID)
	if err != nil {
		return fmt.Errorf("flag for review: %w", err)
	}
	return nil
}

func (s *Store) IncrementAutoReplies(ctx context.Context, linkID string, max int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE lead_campaign_links SET auto_replies_sent = auto_replies_sent + 1, updated_at = NOW()
		WHERE id = $1 AND auto_replies_sent < $2
	`, linkID, max)
	if err != nil {
		return false, fmt.Errorf("increment auto replies: %w", err)
	}
	return affected(res)
}

// ListReviewQueue returns links waiting for a human reply, newest first.
func (s *Store) ListReviewQueue(ctx context.Context, orgID string, limit, offset int) ([]domain.LeadCampaignLink, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM lead_campaign_links l
		JOIN campaigns c ON c.id = l.campaign_id
		WHERE c.organization_id = $1 AND l.needs_human_review = TRUE
	`, orgID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count review queue: %w", err)
	}
	if total == 0 || offset >= total {
		return nil, total, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+linkColumns+`
		FROM lead_campaign_links l
		JOIN campaigns c ON c.id = l.campaign_id
		WHERE c.organization_id = $1 AND l.needs_human_review = TRUE
		ORDER BY l.updated_at DESC
		LIMIT $2 OFFSET $3
	`, orgID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list review queue: %w", err)
	}
	defer rows.Close()

	var out []domain.LeadCampaignLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}

// CountQueuedLinks counts queued links of a campaign and of every campaign
// sending through the account.
func (s *Store) CountQueuedLinks(ctx context.Context, campaignID, accountID string) (int, int, error) {
	var byCampaign, byAccount int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE l.campaign_id = $1),
			COUNT(*) FILTER (WHERE c.channel_account_id = $2)
		FROM lead_campaign_links l
		JOIN campaigns c ON c.id = l.campaign_id
		WHERE l.status = 'queued' AND (l.campaign_id = $1 OR c.channel_account_id = $2)
	`, campaignID, accountID).Scan(&byCampaign, &byAccount)
	if err != nil {
		return 0, 0, fmt.Errorf("count queued links: %w", err)
	}
	return byCampaign, byAccount, nil
}

// RevertStaleQueuedLinks moves queued links whose send time passed before
// cutoff back to pending.
func (s *Store) RevertStaleQueuedLinks(ctx context.Context, cutoff time.Time) ([]worker.RevertedLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE lead_campaign_links l SET status = 'pending', scheduled_at = NULL, updated_at = NOW()
		FROM campaigns c
		WHERE c.id = l.campaign_id AND l.status = 'queued' AND l.scheduled_at < $1
		RETURNING l.id, c.organization_id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("revert stale links: %w", err)
	}
	defer rows.Close()

	var out []worker.RevertedLink
	for rows.Next() {
		var r worker.RevertedLink
		if err := rows.Scan(&r.ID, &r.OrganizationID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
