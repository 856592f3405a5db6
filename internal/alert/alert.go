// Package alert delivers operator-facing notifications raised by the
// delivery-safety engine (anti-ban pauses, human review requests).
package alert

import (
	"context"
	"errors"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/pkg/logger"
)

// Alerter raises an operator alert. Implementations must be safe for
// concurrent use.
type Alerter interface {
	Raise(ctx context.Context, a domain.Alert) error
}

// LogAlerter writes alerts to the structured log. It is the fallback when no
// e-mail transport is configured.
type LogAlerter struct{}

// Raise logs the alert at a level matching its severity.
func (LogAlerter) Raise(_ context.Context, a domain.Alert) error {
	fields := []interface{}{"kind", a.Kind, "title", a.Title, "org", a.OrganizationID, "entity", a.EntityID, "body", a.Body}
	switch a.Severity {
	case domain.SeverityCritical:
		logger.Error("ALERT", fields...)
	case domain.SeverityWarning:
		logger.Warn("ALERT", fields...)
	default:
		logger.Info("ALERT", fields...)
	}
	return nil
}

// Multi fans an alert out to several alerters and joins their errors.
type Multi []Alerter

// Raise delivers to every alerter even when one fails.
func (m Multi) Raise(ctx context.Context, a domain.Alert) error {
	var errs []error
	for _, al := range m {
		if err := al.Raise(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
