// Package replygen produces automatic replies to inbound lead messages.
package replygen

import (
	"context"
	"strings"

	"github.com/ignite/prospect-cadence/internal/pkg/logger"
)

// FallbackReply is sent when generation fails, so an inbound message never
// goes unanswered because of a provider outage.
const FallbackReply = "Obrigado pelo retorno! Vou verificar e já te respondo com mais detalhes."

// Role is who authored a conversation turn.
type Role string

const (
	RoleLead Role = "lead"
	RoleUs   Role = "us"
)

// Turn is one message in the conversation, oldest first.
type Turn struct {
	Role Role
	Text string
}

// LeadContext describes the prospect being answered.
type LeadContext struct {
	Name     string
	Company  string
	City     string
	Category string
	Website  string
}

// PromptConfig carries the campaign's reply settings.
type PromptConfig struct {
	Objective    string
	SystemPrompt string
	Temperature  float64
}

// Generator produces the next reply text.
type Generator interface {
	Generate(ctx context.Context, lead LeadContext, history []Turn, cfg PromptConfig) (string, error)
}

// fallback wraps a generator and swaps failures for FallbackReply.
type fallback struct {
	next Generator
}

// WithFallback returns a generator that never fails: errors and empty output
// from g become FallbackReply.
func WithFallback(g Generator) Generator {
	return fallback{next: g}
}

func (f fallback) Generate(ctx context.Context, lead LeadContext, history []Turn, cfg PromptConfig) (string, error) {
	text, err := f.next.Generate(ctx, lead, history, cfg)
	if err != nil {
		logger.Warn("reply generation failed, using fallback", "error", err)
		return FallbackReply, nil
	}
	if text = strings.TrimSpace(text); text == "" {
		return FallbackReply, nil
	}
	return text, nil
}
