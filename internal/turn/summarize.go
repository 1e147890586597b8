package turn

import (
	"context"
	"fmt"
	"strings"

	"parley/internal/llm"
	"parley/internal/memory"
	"parley/internal/security"
)

const summaryInstruction = "Compress the conversation below into a summary of under 200 words. " +
	"Keep durable facts, user preferences, and decisions that matter for future turns. " +
	"Leave out greetings, small talk, and anything sensitive such as passwords, card numbers, or access tokens."

// Summarizer compresses a room's recent history into a new rolling summary
// using a cheap model. It is lossy and one-way: raw messages stay stored, but
// once outside the recency window the summary is their only representation.
type Summarizer struct {
	provider  llm.Provider
	sanitizer *security.Sanitizer
	model     string
	window    int
	maxTokens int
}

// NewSummarizer creates a summarizer. A nil sanitizer disables PII masking.
func NewSummarizer(provider llm.Provider, sanitizer *security.Sanitizer, model string, window, maxTokens int) *Summarizer {
	if window <= 0 {
		window = 40
	}
	if maxTokens <= 0 {
		maxTokens = 300
	}
	return &Summarizer{
		provider:  provider,
		sanitizer: sanitizer,
		model:     model,
		window:    window,
		maxTokens: maxTokens,
	}
}

// Summarize reads up to the summarizer's window of recent messages and asks
// the model for a compressed replacement of the current summary.
func (s *Summarizer) Summarize(ctx context.Context, room *memory.Room) (string, error) {
	view, err := room.Context(ctx, s.window)
	if err != nil {
		return "", err
	}
	if len(view.Messages) == 0 {
		return "", fmt.Errorf("nothing to summarize")
	}

	var sb strings.Builder
	if view.Summary != "" {
		sb.WriteString("Current summary:\n")
		sb.WriteString(view.Summary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Conversation:\n")
	for _, m := range view.Messages {
		line := m.Role + ": " + m.Content
		if s.sanitizer != nil {
			line = s.sanitizer.Sanitize(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	req := &llm.ChatRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: 0.3,
		Messages: []llm.Message{
			{Role: "system", Content: "You are a conversation summarizer. Produce a brief, factual summary."},
			{Role: "user", Content: summaryInstruction + "\n\n" + sb.String()},
		},
	}

	resp, err := s.provider.Chat(ctx, req)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("summarizer returned empty text")
	}
	return text, nil
}
