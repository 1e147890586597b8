package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider using the Anthropic API.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250514"
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		defaultModel: model,
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.defaultModel }

func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  p.convertMessages(req.Messages),
		MaxTokens: int64(maxTokens),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	return p.convertResponse(resp), nil
}

func (p *AnthropicProvider) convertMessages(messages []Message) []anthropic.MessageParam {
	var msgs []anthropic.MessageParam
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		default:
			// Anthropic only accepts user/assistant turns; system and tool
			// entries travel as user content.
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	return msgs
}

func (p *AnthropicProvider) convertResponse(resp *anthropic.Message) *LLMResponse {
	result := &LLMResponse{
		StopReason: string(resp.StopReason),
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(b.Text)
		}
	}
	result.Content = sb.String()

	return result
}

func classifyAnthropicError(err error) *LLMError {
	msg := err.Error()
	lower := strings.ToLower(msg)
	llmErr := &LLMError{Err: err, Message: msg}

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") || strings.Contains(lower, "authentication"):
		llmErr.Type = ErrorAuth
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		llmErr.Type = ErrorRateLimit
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid"):
		llmErr.Type = ErrorInvalidInput
	case strings.Contains(lower, "500") || strings.Contains(lower, "529") || strings.Contains(lower, "overloaded"):
		llmErr.Type = ErrorServerError
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		llmErr.Type = ErrorTimeout
	case strings.Contains(lower, "connection") || strings.Contains(lower, "dns") || strings.Contains(lower, "refused"):
		llmErr.Type = ErrorNetwork
	default:
		llmErr.Type = ErrorUnknown
	}
	return llmErr
}
