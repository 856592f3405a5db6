package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/gateway"
	"github.com/ignite/prospect-cadence/internal/pkg/logger"
)

// ConnectionMonitor syncs channel account statuses with the gateway.
type ConnectionMonitor struct {
	store Store
	gw    gateway.Client
	now   func() time.Time
}

// NewConnectionMonitor creates a connection monitor.
func NewConnectionMonitor(store Store, gw gateway.Client) *ConnectionMonitor {
	return &ConnectionMonitor{store: store, gw: gw, now: time.Now}
}

// Refresh asks the gateway for every non-banned account's state and stores
// changes. It returns how many accounts changed.
func (m *ConnectionMonitor) Refresh(ctx context.Context) (int, error) {
	accounts, err := m.store.ListChannelAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	changed := 0
	for _, a := range accounts {
		if a.Status == domain.ChannelBanned || a.Instance == "" {
			continue
		}
		state, err := m.gw.ConnectionState(ctx, a.Instance)
		if err != nil {
			logger.Warn("connection state check failed", "account", a.ID, "error", err)
			continue
		}
		next := statusFromState(state)
		if next == a.Status {
			continue
		}
		if err := m.store.UpdateChannelStatus(ctx, a.ID, next); err != nil {
			logger.Error("failed to update account status", "account", a.ID, "error", err)
			continue
		}
		changed++
		recordAudit(ctx, m.store, a.OrganizationID, "channel_account", a.ID, domain.AuditChannelStatus,
			map[string]any{"from": a.Status, "to": next}, m.now())
		logger.Info("channel account status changed", "account", a.ID, "from", a.Status, "to", next)
	}
	return changed, nil
}
