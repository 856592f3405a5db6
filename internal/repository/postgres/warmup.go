package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/warmup"
)

const warmupColumns = `
	channel_account_id, current_day, current_daily_limit, steps, completed, started_at, updated_at`

func scanWarmup(row scanner) (*domain.WarmupProgression, error) {
	p := &domain.WarmupProgression{}
	var steps []byte
	err := row.Scan(&p.ChannelAccountID, &p.CurrentDay, &p.CurrentDailyLimit, &steps,
		&p.Completed, &p.StartedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &p.Steps); err != nil {
			return nil, fmt.Errorf("decode warm-up steps: %w", err)
		}
	}
	return p, nil
}

func (s *Store) GetWarmup(ctx context.Context, accountID string) (*domain.WarmupProgression, error) {
	p, err := scanWarmup(s.db.QueryRowContext(ctx,
		`SELECT `+warmupColumns+` FROM warmup_progressions WHERE channel_account_id = $1`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, warmup.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get warm-up: %w", err)
	}
	return p, nil
}

func (s *Store) ListIncompleteWarmups(ctx context.Context) ([]domain.WarmupProgression, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+warmupColumns+` FROM warmup_progressions WHERE completed = FALSE ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("list warm-ups: %w", err)
	}
	defer rows.Close()

	var out []domain.WarmupProgression
	for rows.Next() {
		p, err := scanWarmup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) CreateWarmup(ctx context.Context, p *domain.WarmupProgression) error {
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("encode warm-up steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO warmup_progressions (
			channel_account_id, current_day, current_daily_limit, steps, completed, started_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ChannelAccountID, p.CurrentDay, p.CurrentDailyLimit, steps, p.Completed, p.StartedAt, p.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return warmup.ErrAlreadyStarted
	}
	if err != nil {
		return fmt.Errorf("create warm-up: %w", err)
	}
	return nil
}

func (s *Store) SaveWarmup(ctx context.Context, p *domain.WarmupProgression) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE warmup_progressions SET
			current_day = $2, current_daily_limit = $3, completed = $4, updated_at = $5
		WHERE channel_account_id = $1
	`, p.ChannelAccountID, p.CurrentDay, p.CurrentDailyLimit, p.Completed, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save warm-up: %w", err)
	}
	if ok, _ := affected(res); !ok {
		return warmup.ErrNotFound
	}
	return nil
}
