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

const leadColumns = `
	id, organization_id, name, phone, company, city, category, website,
	rating, reviews, status, score, do_not_contact, contact_attempts,
	last_contacted_at, created_at, updated_at`

func scanLead(row scanner) (*domain.Lead, error) {
	l := &domain.Lead{}
	var last sql.NullTime
	err := row.Scan(
		&l.ID, &l.OrganizationID, &l.Name, &l.Phone, &l.Company, &l.City, &l.Category, &l.Website,
		&l.Rating, &l.Reviews, &l.Status, &l.Score, &l.DoNotContact, &l.ContactAttempts,
		&last, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.LastContactedAt = timePtr(last)
	return l, nil
}

func (s *Store) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	l, err := scanLead(s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, worker.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// FindLeadByPhone resolves an inbound sender to a lead of the organization.
func (s *Store) FindLeadByPhone(ctx context.Context, orgID, phone string) (*domain.Lead, error) {
	l, err := scanLead(s.db.QueryRowContext(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE organization_id = $1 AND phone = $2
		ORDER BY updated_at DESC LIMIT 1
	`, orgID, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, worker.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find lead by phone: %w", err)
	}
	return l, nil
}

func (s *Store) MarkLeadContacted(ctx context.Context, leadID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE leads SET
			status = CASE WHEN status IN ('replied', 'blocked') THEN status ELSE 'contacted' END,
			contact_attempts = contact_attempts + 1,
			last_contacted_at = $2,
			updated_at = NOW()
		WHERE id = $1
	`, leadID, at)
	if err != nil {
		return fmt.Errorf("mark lead contacted: %w", err)
	}
	return nil
}

// BlockLead flags the lead and skips its open links in one transaction.
func (s *Store) BlockLead(ctx context.Context, leadID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE leads SET status = 'blocked', do_not_contact = TRUE, updated_at = NOW()
		WHERE id = $1
	`, leadID); err != nil {
		return nil, fmt.Errorf("block lead: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		UPDATE lead_campaign_links SET status = 'skipped', updated_at = NOW()
		WHERE lead_id = $1 AND status IN ('pending', 'queued')
		RETURNING id
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("skip lead links: %w", err)
	}
	var skipped []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		skipped = append(skipped, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return skipped, nil
}

// enrollLeads creates one pending link per contactable lead of the campaign's
// organization. Leads already enrolled are left alone.
func (s *Store) enrollLeads(ctx context.Context, tx *sql.Tx, c *domain.Campaign, leadIDs []string, rules []scoring.Rule, now time.Time) (int, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE organization_id = $1 AND id = ANY($2)
		  AND do_not_contact = FALSE AND status <> 'blocked' AND phone <> ''
	`, c.OrganizationID, pq.Array(leadIDs))
	if err != nil {
		return 0, fmt.Errorf("load leads for enrollment: %w", err)
	}
	var leads []*domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	enrolled := 0
	for _, l := range leads {
		priority := s.scorer.Score(l, rules).Score
		res, err := tx.ExecContext(ctx, `
			INSERT INTO lead_campaign_links (
				id, lead_id, campaign_id, status, stage, priority, last_variant_index, created_at, updated_at
			) VALUES ($1, $2, $3, 'pending', 'new', $4, -1, $5, $5)
			ON CONFLICT (lead_id, campaign_id) DO NOTHING
		`, uuid.New().String(), l.ID, c.ID, priority, now)
		if err != nil {
			return 0, fmt.Errorf("enroll lead %s: %w", l.ID, err)
		}
		if ok, _ := affected(res); ok {
			enrolled++
		}
	}
	return enrolled, nil
}
