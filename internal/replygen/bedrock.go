package replygen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/ignite/prospect-cadence/internal/config"
	"github.com/ignite/prospect-cadence/internal/pkg/logger"
)

// ModelInvoker is the subset of the Bedrock runtime client the generator uses.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockGenerator generates replies with an Anthropic model on AWS Bedrock.
type BedrockGenerator struct {
	client    ModelInvoker
	modelID   string
	maxTokens int
}

// bedrockMessage is a message in the Anthropic messages format.
type bedrockMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewBedrockGenerator loads AWS config and creates a generator.
func NewBedrockGenerator(ctx context.Context, cfg appconfig.BedrockConfig) (*BedrockGenerator, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("bedrock reply generator initialized", "model", cfg.ModelID, "region", cfg.Region)
	return NewBedrockGeneratorWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg.ModelID, cfg.MaxTokens), nil
}

// NewBedrockGeneratorWithClient creates a generator on an existing client.
func NewBedrockGeneratorWithClient(client ModelInvoker, modelID string, maxTokens int) *BedrockGenerator {
	if maxTokens <= 0 {
		maxTokens = 300
	}
	return &BedrockGenerator{client: client, modelID: modelID, maxTokens: maxTokens}
}

// Generate asks the model for the next reply to the lead.
func (b *BedrockGenerator) Generate(ctx context.Context, lead LeadContext, history []Turn, cfg PromptConfig) (string, error) {
	messages := toMessages(history)
	if len(messages) == 0 {
		return "", fmt.Errorf("no conversation to reply to")
	}

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        b.maxTokens,
		System:           systemPrompt(lead, cfg),
		Messages:         messages,
		Temperature:      cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock invoke: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	logger.Debug("reply generated", "in_tokens", resp.Usage.InputTokens, "out_tokens", resp.Usage.OutputTokens)
	return strings.TrimSpace(sb.String()), nil
}

// toMessages maps turns to alternating user/assistant messages. Consecutive
// turns by the same author are merged, and a conversation we opened gets a
// placeholder user turn because the model requires the user to speak first.
func toMessages(history []Turn) []bedrockMessage {
	var out []bedrockMessage
	for _, t := range history {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		role := "user"
		if t.Role == RoleUs {
			role = "assistant"
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content[0].Text += "\n" + text
			continue
		}
		out = append(out, bedrockMessage{Role: role, Content: []contentBlock{{Type: "text", Text: text}}})
	}
	if len(out) > 0 && out[0].Role == "assistant" {
		out = append([]bedrockMessage{{Role: "user", Content: []contentBlock{{Type: "text", Text: "(conversation opened by the business)"}}}}, out...)
	}
	return out
}

func systemPrompt(lead LeadContext, cfg PromptConfig) string {
	var sb strings.Builder
	if cfg.SystemPrompt != "" {
		sb.WriteString(cfg.SystemPrompt)
	} else {
		sb.WriteString("You reply to business prospects on a chat app on behalf of a sales team. " +
			"Write short, friendly messages in the prospect's language. Never invent prices or promises.")
	}
	if cfg.Objective != "" {
		fmt.Fprintf(&sb, "\n\nCampaign objective: %s", cfg.Objective)
	}
	sb.WriteString("\n\nProspect:")
	for _, kv := range [][2]string{
		{"Name", lead.Name}, {"Company", lead.Company}, {"City", lead.City},
		{"Category", lead.Category}, {"Website", lead.Website},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&sb, "\n- %s: %s", kv[0], kv[1])
		}
	}
	return sb.String()
}
