package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/worker"
)

const messageColumns = `
	id, organization_id, lead_id, campaign_id, channel_account_id, direction, content,
	status, source, COALESCE(external_id, ''), error, created_at, sent_at, delivered_at, read_at`

func scanMessage(row scanner) (*domain.OutboundMessage, error) {
	m := &domain.OutboundMessage{}
	var (
		campaignID              sql.NullString
		sent, delivered, readAt sql.NullTime
	)
	err := row.Scan(&m.ID, &m.OrganizationID, &m.LeadID, &campaignID, &m.ChannelAccountID,
		&m.Direction, &m.Content, &m.Status, &m.Source, &m.ExternalID, &m.Error,
		&m.CreatedAt, &sent, &delivered, &readAt)
	if err != nil {
		return nil, err
	}
	if campaignID.Valid {
		m.CampaignID = &campaignID.String
	}
	m.SentAt = timePtr(sent)
	m.DeliveredAt = timePtr(delivered)
	m.ReadAt = timePtr(readAt)
	return m, nil
}

const insertMessage = `
	INSERT INTO messages (
		id, organization_id, lead_id, campaign_id, channel_account_id, direction, content,
		status, source, external_id, error, created_at, sent_at, delivered_at, read_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10, ''),$11,$12,$13,$14,$15)`

func messageArgs(m *domain.OutboundMessage) []any {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return []any{
		m.ID, m.OrganizationID, m.LeadID, nullString(m.CampaignID), m.ChannelAccountID,
		m.Direction, m.Content, m.Status, m.Source, m.ExternalID, m.Error, m.CreatedAt,
		nullTime(m.SentAt), nullTime(m.DeliveredAt), nullTime(m.ReadAt),
	}
}

func (s *Store) RecordMessage(ctx context.Context, m *domain.OutboundMessage) error {
	if _, err := s.db.ExecContext(ctx, insertMessage, messageArgs(m)...); err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// RecordInbound inserts the message unless its external ID is already known.
func (s *Store) RecordInbound(ctx context.Context, m *domain.OutboundMessage) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		insertMessage+` ON CONFLICT (external_id) WHERE external_id IS NOT NULL DO NOTHING`,
		messageArgs(m)...)
	if err != nil {
		return false, fmt.Errorf("record inbound: %w", err)
	}
	return affected(res)
}

func (s *Store) RecentConversation(ctx context.Context, leadID string, limit int) ([]domain.OutboundMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE lead_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent ORDER BY created_at ASC
	`, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent conversation: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboundMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// CountOutcomes counts outbound rows of the account since the given time.
func (s *Store) CountOutcomes(ctx context.Context, accountID string, since time.Time) (int, int, error) {
	var total, failed int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'failed')
		FROM messages
		WHERE channel_account_id = $1 AND direction = 'outbound' AND created_at >= $2
	`, accountID, since).Scan(&total, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count outcomes: %w", err)
	}
	return total, failed, nil
}

// UpdateMessageStatus applies a delivery receipt to the message with the
// given external ID. Receipts that would move the message backwards are
// ignored and reported as false.
func (s *Store) UpdateMessageStatus(ctx context.Context, externalID string, next domain.MessageStatus, at time.Time) (bool, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE external_id = $1`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return false, worker.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("load message: %w", err)
	}

	prev := m.Status
	if err := m.Transition(next, at); err != nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET status = $3, sent_at = $4, delivered_at = $5, read_at = $6
		WHERE id = $1 AND status = $2
	`, m.ID, prev, m.Status, nullTime(m.SentAt), nullTime(m.DeliveredAt), nullTime(m.ReadAt))
	if err != nil {
		return false, fmt.Errorf("update message status: %w", err)
	}
	return affected(res)
}
