package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/worker"
)

type staleStore struct {
	mu       sync.Mutex
	cutoffs  []time.Time
	reverted []worker.RevertedLink
	err      error
	audits   []domain.AuditEntry
}

func (s *staleStore) RevertStaleQueuedLinks(_ context.Context, cutoff time.Time) ([]worker.RevertedLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, cutoff)
	out := s.reverted
	s.reverted = nil
	return out, s.err
}

func (s *staleStore) RecordAudit(_ context.Context, e domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, e)
	return nil
}

func TestLinkRecoveryRevertsOrphans(t *testing.T) {
	store := &staleStore{reverted: []worker.RevertedLink{
		{ID: "link-1", OrganizationID: "org-1"},
		{ID: "link-2", OrganizationID: "org-1"},
	}}
	r := worker.NewLinkRecoveryWorker(store, 0, time.Hour)

	before := time.Now()
	n, err := r.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, store.cutoffs, 1)
	assert.WithinDuration(t, before.Add(-time.Hour), store.cutoffs[0], 5*time.Second)

	require.Len(t, store.audits, 2)
	for _, a := range store.audits {
		assert.Equal(t, domain.AuditLinkReverted, a.Action)
		assert.Equal(t, "org-1", a.OrganizationID)
	}

	n, err = r.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLinkRecoveryPropagatesStoreError(t *testing.T) {
	store := &staleStore{err: errors.New("db down")}
	r := worker.NewLinkRecoveryWorker(store, time.Minute, 0)

	_, err := r.RecoverOnce(context.Background())
	assert.Error(t, err)
	assert.Empty(t, store.audits)
}

func TestLinkRecoveryStopsWithContext(t *testing.T) {
	r := worker.NewLinkRecoveryWorker(&staleStore{}, 10*time.Millisecond, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("recovery worker did not stop")
	}
}
