package llm

import (
	"context"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider using the OpenAI API.
// Also works with compatible APIs (Ollama, LM Studio, vLLM) via BaseURL.
type OpenAIProvider struct {
	client       openai.Client
	defaultModel string
	speechVoice  string
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	SpeechVoice string
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	voice := cfg.SpeechVoice
	if voice == "" {
		voice = "alloy"
	}

	return &OpenAIProvider{
		client:       openai.NewClient(opts...),
		defaultModel: model,
		speechVoice:  voice,
	}
}

func (p *OpenAIProvider) Name() string         { return "openai" }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: p.convertMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	return p.convertResponse(resp), nil
}

// Transcribe implements Transcriber via the Whisper endpoint.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := p.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(audio, filename, "application/octet-stream"),
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	return resp.Text, nil
}

// Synthesize implements Synthesizer via the speech endpoint. The returned
// stream carries the encoded audio and must be closed by the caller.
func (p *OpenAIProvider) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	resp, err := p.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: openai.SpeechModelTTS1,
		Input: text,
		Voice: openai.AudioSpeechNewParamsVoice(p.speechVoice),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	return resp.Body, nil
}

func (p *OpenAIProvider) convertMessages(req *ChatRequest) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			// "user" and "tool" turns both read as user context here
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return msgs
}

func (p *OpenAIProvider) convertResponse(resp *openai.ChatCompletion) *LLMResponse {
	result := &LLMResponse{
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		result.Content = choice.Message.Content
		result.StopReason = string(choice.FinishReason)
	}

	return result
}

func classifyOpenAIError(err error) *LLMError {
	msg := err.Error()
	lower := strings.ToLower(msg)
	llmErr := &LLMError{Err: err, Message: msg}

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") || strings.Contains(lower, "unauthorized"):
		llmErr.Type = ErrorAuth
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		llmErr.Type = ErrorRateLimit
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid"):
		llmErr.Type = ErrorInvalidInput
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503"):
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
