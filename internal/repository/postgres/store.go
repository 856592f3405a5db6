// Package postgres implements the cadence data access contracts against
// PostgreSQL. Every status change is a conditional UPDATE guarded by the
// expected current status, so concurrent workers never take table locks.
package postgres

import (
	"database/sql"
	"time"

	"github.com/ignite/prospect-cadence/internal/antiban"
	"github.com/ignite/prospect-cadence/internal/scoring"
	"github.com/ignite/prospect-cadence/internal/warmup"
	"github.com/ignite/prospect-cadence/internal/worker"
)

var (
	_ worker.Store          = (*Store)(nil)
	_ worker.StaleLinkStore = (*Store)(nil)
	_ warmup.Repository     = (*Store)(nil)
	_ antiban.Repository    = (*Store)(nil)
)

// Store is the Postgres-backed store shared by the workers and the API.
type Store struct {
	db     *sql.DB
	scorer scoring.Scorer
	now    func() time.Time
}

// NewStore creates a store on db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, scorer: scoring.RuleScorer{}, now: time.Now}
}

// DB exposes the underlying handle for health checks and advisory locks.
func (s *Store) DB() *sql.DB { return s.db }

type scanner interface {
	Scan(dest ...any) error
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
