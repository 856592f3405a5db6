package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/ignite/prospect-cadence/internal/config"
	"github.com/ignite/prospect-cadence/internal/domain"
)

// EmailSender is the subset of the SES v2 client used for alert delivery.
type EmailSender interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESAlerter e-mails alerts to operators through Amazon SES.
type SESAlerter struct {
	client      EmailSender
	from        string
	to          []string
	minSeverity domain.AlertSeverity
}

// NewSESAlerter creates an SES-backed alerter. Static credentials are used
// when configured, otherwise the default AWS credential chain applies.
func NewSESAlerter(ctx context.Context, cfg appconfig.AlertsConfig) (*SESAlerter, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.SESRegion)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewSESAlerterWithClient(sesv2.NewFromConfig(awsCfg), cfg.From, cfg.To, domain.AlertSeverity(cfg.MinSeverity)), nil
}

// NewSESAlerterWithClient builds an alerter around an existing client.
func NewSESAlerterWithClient(client EmailSender, from string, to []string, minSeverity domain.AlertSeverity) *SESAlerter {
	if minSeverity == "" {
		minSeverity = domain.SeverityWarning
	}
	return &SESAlerter{client: client, from: from, to: to, minSeverity: minSeverity}
}

var severityRank = map[domain.AlertSeverity]int{
	domain.SeverityInfo:     0,
	domain.SeverityWarning:  1,
	domain.SeverityCritical: 2,
}

// Raise e-mails the alert when it meets the minimum severity.
func (s *SESAlerter) Raise(ctx context.Context, a domain.Alert) error {
	if severityRank[a.Severity] < severityRank[s.minSeverity] || len(s.to) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Severity)), a.Title)
	body := fmt.Sprintf(`%s
==========================

Kind:         %s
Organization: %s
Entity:       %s
Raised:       %s

---
Automated alert from the prospecting cadence engine.
`, a.Body, a.Kind, a.OrganizationID, a.EntityID, a.RaisedAt.Format(time.RFC3339))

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: s.to},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send alert: %w", err)
	}
	return nil
}
