package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/prospect-cadence/internal/domain"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sesv2.SendEmailOutput{}, f.err
}

func testAlert(sev domain.AlertSeverity) domain.Alert {
	return domain.Alert{
		Severity: sev,
		Kind:     "antiban_pause",
		Title:    "Account paused",
		Body:     "5 of 20 sends failed",
		EntityID: "acc-1",
		RaisedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestSESAlerterSendsAboveThreshold(t *testing.T) {
	ses := &fakeSES{}
	a := NewSESAlerterWithClient(ses, "alerts@example.com", []string{"ops@example.com"}, "")

	require.NoError(t, a.Raise(context.Background(), testAlert(domain.SeverityCritical)))
	require.Len(t, ses.inputs, 1)

	in := ses.inputs[0]
	assert.Equal(t, "alerts@example.com", *in.FromEmailAddress)
	assert.Equal(t, []string{"ops@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "[CRITICAL] Account paused", *in.Content.Simple.Subject.Data)
	assert.Contains(t, *in.Content.Simple.Body.Text.Data, "acc-1")
}

func TestSESAlerterFiltersLowSeverity(t *testing.T) {
	ses := &fakeSES{}
	a := NewSESAlerterWithClient(ses, "alerts@example.com", []string{"ops@example.com"}, domain.SeverityWarning)

	require.NoError(t, a.Raise(context.Background(), testAlert(domain.SeverityInfo)))
	assert.Empty(t, ses.inputs)
}

func TestMultiJoinsErrors(t *testing.T) {
	failing := NewSESAlerterWithClient(&fakeSES{err: errors.New("throttled")}, "a@x", []string{"b@x"}, "")
	m := Multi{LogAlerter{}, failing}

	err := m.Raise(context.Background(), testAlert(domain.SeverityCritical))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
