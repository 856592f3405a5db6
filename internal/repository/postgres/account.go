package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/worker"
)

const accountColumns = `
	id, organization_id, name, instance, phone, status, daily_limit, daily_sent, created_at, updated_at`

func scanAccount(row scanner) (*domain.ChannelAccount, error) {
	a := &domain.ChannelAccount{}
	err := row.Scan(&a.ID, &a.OrganizationID, &a.Name, &a.Instance, &a.Phone, &a.Status,
		&a.DailyLimit, &a.DailySent, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) getAccount(ctx context.Context, where string, arg any) (*domain.ChannelAccount, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM channel_accounts WHERE `+where+` = $1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, worker.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel account: %w", err)
	}
	return a, nil
}

func (s *Store) GetChannelAccount(ctx context.Context, id string) (*domain.ChannelAccount, error) {
	return s.getAccount(ctx, "id", id)
}

func (s *Store) GetChannelAccountByInstance(ctx context.Context, instance string) (*domain.ChannelAccount, error) {
	return s.getAccount(ctx, "instance", instance)
}

func (s *Store) listAccounts(ctx context.Context, q string) ([]domain.ChannelAccount, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list channel accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.ChannelAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) ListChannelAccounts(ctx context.Context) ([]domain.ChannelAccount, error) {
	return s.listAccounts(ctx, `SELECT `+accountColumns+` FROM channel_accounts ORDER BY created_at`)
}

func (s *Store) ListConnectedAccounts(ctx context.Context) ([]domain.ChannelAccount, error) {
	return s.listAccounts(ctx,
		`SELECT `+accountColumns+` FROM channel_accounts WHERE status = 'connected' ORDER BY created_at`)
}

// UpdateChannelStatus records a new connection status. A banned account only
// leaves banned through an explicit operator action, never through a status
// sync.
func (s *Store) UpdateChannelStatus(ctx context.Context, id string, status domain.ChannelStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channel_accounts SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'banned'
	`, id, status)
	if err != nil {
		return fmt.Errorf("update channel status: %w", err)
	}
	return nil
}

func (s *Store) IncrementAccountSent(ctx context.Context, accountID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE channel_accounts SET daily_sent = daily_sent + 1, updated_at = NOW()
		WHERE id = $1 AND daily_sent < daily_limit
	`, accountID)
	if err != nil {
		return false, fmt.Errorf("increment account sent: %w", err)
	}
	return affected(res)
}

func (s *Store) ReleaseAccountSent(ctx context.Context, accountID string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE channel_accounts SET daily_sent = daily_sent - 1, updated_at = NOW()
		WHERE id = $1 AND daily_sent > 0
	`, accountID); err != nil {
		return fmt.Errorf("release account sent: %w", err)
	}
	return nil
}
