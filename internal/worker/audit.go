package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/pkg/logger"
)

type auditRecorder interface {
	RecordAudit(ctx context.Context, e domain.AuditEntry) error
}

// recordAudit writes an audit entry. A failed write is logged; it never
// undoes the state change it describes.
func recordAudit(ctx context.Context, store auditRecorder, orgID, entityType, entityID string, action domain.AuditAction, details map[string]any, at time.Time) {
	err := store.RecordAudit(ctx, domain.AuditEntry{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		EntityType:     entityType,
		EntityID:       entityID,
		Action:         action,
		Details:        details,
		CreatedAt:      at,
	})
	if err != nil {
		logger.Warn("audit write failed", "entity", entityType, "id", entityID, "action", action, "error", err)
	}
}
